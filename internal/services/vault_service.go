package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/envelope"
	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/metrics"
	"github.com/Wikid82/entitled/internal/models"
)

// VaultService stores encrypted vault records and decrypts them for holders of
// a live privilege session.
type VaultService struct {
	db     *gorm.DB
	cipher *envelope.Cipher
	audit  *AuditService
	now    func() time.Time
}

func NewVaultService(db *gorm.DB, cipher *envelope.Cipher, audit *AuditService) *VaultService {
	return &VaultService{db: db, cipher: cipher, audit: audit, now: time.Now}
}

// ListItems returns item metadata. Titles only; records stay encrypted.
func (s *VaultService) ListItems(ctx context.Context, viewer *models.User) ([]models.VaultItem, error) {
	if viewer.Role != models.RoleEmployee && viewer.Role != models.RoleAdmin {
		return nil, newError(ErrAuthorization, "auditors cannot access vault items")
	}
	items := []models.VaultItem{}
	if err := s.db.WithContext(ctx).Order("title").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *VaultService) GetItem(ctx context.Context, id string) (*models.VaultItem, error) {
	var item models.VaultItem
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "vault item not found")
		}
		return nil, err
	}
	return &item, nil
}

// ReadForSession decrypts the item covered by session, refusing unless the
// session is live now.
func (s *VaultService) ReadForSession(ctx context.Context, session *models.PrivilegeSession) ([]models.DecryptedRecord, error) {
	if session == nil || !session.LiveAt(s.now()) {
		metrics.IncAccessDenied("no_live_session")
		return nil, newError(ErrAuthorization, "no active privilege session for this vault item")
	}
	return s.ReadDecrypted(ctx, session.VaultItemID)
}

// ReadDecrypted decrypts every record of the item. The caller must already hold
// a validated session. Any record that fails to decrypt or parse fails the
// whole read; partial results are never returned.
func (s *VaultService) ReadDecrypted(ctx context.Context, vaultItemID string) ([]models.DecryptedRecord, error) {
	var records []models.VaultRecord
	if err := s.db.WithContext(ctx).
		Where("vault_item_id = ?", vaultItemID).
		Order("created_at").
		Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]models.DecryptedRecord, 0, len(records))
	for _, rec := range records {
		plain, err := s.cipher.Decrypt(rec.EncryptedPayload)
		if err != nil {
			return nil, s.cryptoFailure(rec, err)
		}
		var payload models.RecordPayload
		if err := json.Unmarshal(plain, &payload); err != nil {
			return nil, s.cryptoFailure(rec, err)
		}
		out = append(out, models.DecryptedRecord{ID: rec.ID, RecordPayload: payload})
	}
	return out, nil
}

func (s *VaultService) cryptoFailure(rec models.VaultRecord, cause error) error {
	metrics.IncCryptoFailure()
	logger.Security().WithFields(map[string]interface{}{
		"vault_item_id": rec.VaultItemID,
		"record_id":     rec.ID,
		"error":         cause.Error(),
	}).Error("vault record failed integrity verification")
	return newError(ErrCrypto, "vault data could not be verified")
}

// CreateItem stores a new item with each payload encrypted. Admins only.
func (s *VaultService) CreateItem(ctx context.Context, actor *models.User, title string, payloads []models.RecordPayload) (*models.VaultItem, error) {
	if actor.Role != models.RoleAdmin {
		return nil, newError(ErrAuthorization, "only admins can create vault items")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, newError(ErrValidation, "title is required")
	}

	item := &models.VaultItem{Title: title}
	for _, p := range payloads {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		token, err := s.cipher.Encrypt(b)
		if err != nil {
			return nil, err
		}
		item.Records = append(item.Records, models.VaultRecord{EncryptedPayload: token})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		_, err := s.audit.Record(tx, actor.ID, models.ActionVaultItemCreated,
			WithVaultItem(item.ID),
			WithMetadata(map[string]interface{}{"records": len(item.Records)}))
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item with its records, sessions and requests.
// Audit entries that reference it are kept.
func (s *VaultService) DeleteItem(ctx context.Context, actor *models.User, id string) error {
	if actor.Role != models.RoleAdmin {
		return newError(ErrAuthorization, "only admins can delete vault items")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.VaultItem
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(ErrNotFound, "vault item not found")
			}
			return err
		}
		for _, dep := range []interface{}{&models.VaultRecord{}, &models.PrivilegeSession{}, &models.AccessRequest{}} {
			if err := tx.Where("vault_item_id = ?", id).Delete(dep).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&item).Error; err != nil {
			return err
		}
		_, err := s.audit.Record(tx, actor.ID, models.ActionVaultItemDeleted,
			WithVaultItem(item.ID),
			WithMetadata(map[string]interface{}{"title": item.Title}))
		return err
	})
}
