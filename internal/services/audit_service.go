package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/models"
)

// AuditService appends to and reads the audit trail.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService returns an AuditService using the provided DB
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// EntryOption decorates an audit entry before it is written.
type EntryOption func(*models.AuditLog) error

// WithVaultItem references the vault item the action touched.
func WithVaultItem(id string) EntryOption {
	return func(e *models.AuditLog) error {
		e.VaultItemID = &id
		return nil
	}
}

// WithTargetUser references the user the action was about.
func WithTargetUser(id string) EntryOption {
	return func(e *models.AuditLog) error {
		e.TargetUserID = &id
		return nil
	}
}

// WithMetadata attaches structured context, serialized as JSON.
func WithMetadata(meta map[string]interface{}) EntryOption {
	return func(e *models.AuditLog) error {
		if len(meta) == 0 {
			return nil
		}
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		s := string(b)
		e.Metadata = &s
		return nil
	}
}

// Record appends an entry using tx, which must be the transaction carrying the
// state change being documented. If tx rolls back the entry goes with it.
func (s *AuditService) Record(tx *gorm.DB, actorID, action string, opts ...EntryOption) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Timestamp: s.now().UTC(),
	}
	for _, opt := range opts {
		if err := opt(entry); err != nil {
			return nil, err
		}
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("write audit entry %s: %w", action, err)
	}
	return entry, nil
}

// AuditView is an entry with referenced names resolved for display.
type AuditView struct {
	models.AuditLog
	ActorUsername  string  `json:"actor_username"`
	VaultItemTitle *string `json:"vault_item_title"`
	TargetUsername *string `json:"target_username"`
}

// List returns the trail newest first. Only auditors may read it.
func (s *AuditService) List(ctx context.Context, viewer *models.User) ([]AuditView, error) {
	switch viewer.Role {
	case models.RoleAuditor:
	case models.RoleEmployee, models.RoleAdmin:
		return nil, newError(ErrAuthorization, "only auditors can read audit logs")
	default:
		return nil, newError(ErrAuthorization, "unknown role")
	}

	db := s.db.WithContext(ctx)

	var entries []models.AuditLog
	if err := db.Order("timestamp desc").Find(&entries).Error; err != nil {
		return nil, err
	}

	userIDs := map[string]struct{}{}
	itemIDs := map[string]struct{}{}
	for _, e := range entries {
		userIDs[e.ActorID] = struct{}{}
		if e.TargetUserID != nil {
			userIDs[*e.TargetUserID] = struct{}{}
		}
		if e.VaultItemID != nil {
			itemIDs[*e.VaultItemID] = struct{}{}
		}
	}

	usernames := map[string]string{}
	if len(userIDs) > 0 {
		var users []models.User
		if err := db.Select("id", "username").Where("id IN ?", keys(userIDs)).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}

	titles := map[string]string{}
	if len(itemIDs) > 0 {
		var items []models.VaultItem
		if err := db.Select("id", "title").Where("id IN ?", keys(itemIDs)).Find(&items).Error; err != nil {
			return nil, err
		}
		for _, it := range items {
			titles[it.ID] = it.Title
		}
	}

	views := make([]AuditView, 0, len(entries))
	for _, e := range entries {
		v := AuditView{AuditLog: e, ActorUsername: usernames[e.ActorID]}
		if e.VaultItemID != nil {
			if t, ok := titles[*e.VaultItemID]; ok {
				v.VaultItemTitle = &t
			}
		}
		if e.TargetUserID != nil {
			if n, ok := usernames[*e.TargetUserID]; ok {
				v.TargetUsername = &n
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
