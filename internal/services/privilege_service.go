package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/entitled/internal/logger"
	"github.com/Wikid82/entitled/internal/metrics"
	"github.com/Wikid82/entitled/internal/models"
)

// SecondFactorChecker verifies a submitted TOTP code for a user.
type SecondFactorChecker interface {
	VerifySecondFactor(user *models.User, code string) error
}

// PrivilegeOptions tunes session issuance.
type PrivilegeOptions struct {
	// Duration is how long a granted session stays live.
	Duration time.Duration
	// EnforceAccessKind requires the approved request to cover the requested
	// access type. Off by default: any approved request for the pair suffices.
	EnforceAccessKind bool
}

// PrivilegeService issues and checks time-boxed vault sessions.
// Expired sessions are reconciled lazily by IsActive; there is no timer.
type PrivilegeService struct {
	db    *gorm.DB
	audit *AuditService
	mfa   SecondFactorChecker
	opts  PrivilegeOptions
	now   func() time.Time
}

func NewPrivilegeService(db *gorm.DB, audit *AuditService, mfa SecondFactorChecker, opts PrivilegeOptions) *PrivilegeService {
	if opts.Duration <= 0 {
		opts.Duration = 3 * time.Minute
	}
	return &PrivilegeService{db: db, audit: audit, mfa: mfa, opts: opts, now: time.Now}
}

// Grant opens a session for holder on the vault item after a step-up TOTP check.
// Employees additionally need an approved access request for the item;
// auditors are always refused.
func (s *PrivilegeService) Grant(ctx context.Context, holder *models.User, vaultItemID string, kind models.AccessType, code string) (*models.PrivilegeSession, error) {
	switch holder.Role {
	case models.RoleEmployee, models.RoleAdmin:
	case models.RoleAuditor:
		metrics.IncAccessDenied("auditor")
		return nil, newError(ErrAuthorization, "auditors cannot access vault data")
	default:
		metrics.IncAccessDenied("unknown_role")
		return nil, newError(ErrAuthorization, "unknown role")
	}
	if kind != models.AccessRead && kind != models.AccessWrite {
		return nil, newError(ErrValidation, "invalid access type")
	}

	if err := s.mfa.VerifySecondFactor(holder, code); err != nil {
		if errors.Is(err, ErrAuthentication) {
			metrics.IncAccessDenied("invalid_mfa")
			logger.WithFields(map[string]interface{}{"user_id": holder.ID, "vault_item_id": vaultItemID}).Warn("vault access rejected: invalid MFA code")
		}
		return nil, err
	}

	var session *models.PrivilegeSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.VaultItem
		if err := tx.Where("id = ?", vaultItemID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(ErrNotFound, "vault item not found")
			}
			return err
		}

		if holder.Role == models.RoleEmployee {
			ok, err := s.hasApprovedRequest(tx, holder.ID, item.ID, kind)
			if err != nil {
				return err
			}
			if !ok {
				metrics.IncAccessDenied("no_approved_request")
				return newError(ErrAuthorization, "no approved access request for this vault item")
			}
		}

		now := s.now().UTC()
		session = &models.PrivilegeSession{
			UserID:      holder.ID,
			VaultItemID: item.ID,
			AccessType:  kind,
			StartedAt:   now,
			ExpiresAt:   now.Add(s.opts.Duration),
			IsActive:    true,
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}

		_, err := s.audit.Record(tx, holder.ID, models.ActionVaultAccessGranted,
			WithVaultItem(item.ID),
			WithMetadata(map[string]interface{}{
				"session_id":  session.ID,
				"access_type": string(kind),
			}))
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.IncSessionGranted()
	logger.WithFields(map[string]interface{}{
		"session_id":    session.ID,
		"user_id":       holder.ID,
		"vault_item_id": session.VaultItemID,
		"expires_at":    session.ExpiresAt,
	}).Info("privilege session granted")
	return session, nil
}

func (s *PrivilegeService) hasApprovedRequest(tx *gorm.DB, employeeID, vaultItemID string, kind models.AccessType) (bool, error) {
	q := tx.Model(&models.AccessRequest{}).
		Where("employee_id = ? AND vault_item_id = ? AND status = ?", employeeID, vaultItemID, models.RequestApproved)
	if s.opts.EnforceAccessKind && kind == models.AccessWrite {
		q = q.Where("access_type = ?", models.AccessWrite)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsActive reports whether holder has a live session on the vault item at now.
// Sessions still flagged active past expiry are switched off as a side effect.
func (s *PrivilegeService) IsActive(ctx context.Context, holderID, vaultItemID string, now time.Time) (bool, error) {
	live, err := s.reconcile(ctx, holderID, vaultItemID, now)
	if err != nil {
		return false, err
	}
	return live != nil, nil
}

// CheckSession returns the live session for the pair, or nil if none.
func (s *PrivilegeService) CheckSession(ctx context.Context, holderID, vaultItemID string) (*models.PrivilegeSession, error) {
	return s.reconcile(ctx, holderID, vaultItemID, s.now())
}

// reconcile observes the pair's flagged-active sessions and clears stale flags.
// The update only ever writes false and is guarded on is_active, so repeated or
// concurrent calls converge and can never revive an expired session.
func (s *PrivilegeService) reconcile(ctx context.Context, holderID, vaultItemID string, now time.Time) (*models.PrivilegeSession, error) {
	var live *models.PrivilegeSession

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessions []models.PrivilegeSession
		if err := tx.Where("user_id = ? AND vault_item_id = ? AND is_active = ?", holderID, vaultItemID, true).
			Order("expires_at desc").
			Find(&sessions).Error; err != nil {
			return err
		}

		var stale []string
		for i := range sessions {
			switch {
			case sessions[i].LiveAt(now):
				if live == nil {
					live = &sessions[i]
				}
			case sessions[i].Stale(now):
				stale = append(stale, sessions[i].ID)
			}
		}
		if len(stale) == 0 {
			return nil
		}

		res := tx.Model(&models.PrivilegeSession{}).
			Where("id IN ? AND is_active = ?", stale, true).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			logger.WithFields(map[string]interface{}{
				"user_id":       holderID,
				"vault_item_id": vaultItemID,
				"expired":       res.RowsAffected,
			}).Debug("deactivated expired privilege sessions")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return live, nil
}
