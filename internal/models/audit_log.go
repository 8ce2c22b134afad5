package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions.
const (
	ActionLogin                 = "LOGIN"
	ActionMFAProvisioningViewed = "MFA_PROVISIONING_VIEWED"
	ActionAccessRequestCreated  = "ACCESS_REQUEST_CREATED"
	ActionAccessRequestApproved = "ACCESS_REQUEST_APPROVED"
	ActionAccessRequestRejected = "ACCESS_REQUEST_REJECTED"
	ActionVaultAccessGranted    = "VAULT_ACCESS_GRANTED"
	ActionVaultItemCreated      = "VAULT_ITEM_CREATED"
	ActionVaultItemDeleted      = "VAULT_ITEM_DELETED"
	ActionUserCreated           = "USER_CREATED"
	ActionPasswordReset         = "PASSWORD_RESET"
)

// ErrAuditImmutable is returned by any attempt to change a stored entry.
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// AuditLog records one sensitive action. Rows are never updated or deleted.
type AuditLog struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ActorID      string    `json:"actor_id" gorm:"type:varchar(36);not null;index"`
	Action       string    `json:"action" gorm:"type:varchar(64);not null;index"`
	VaultItemID  *string   `json:"vault_item_id" gorm:"type:varchar(36);index"`
	TargetUserID *string   `json:"target_user_id" gorm:"type:varchar(36)"`
	Timestamp    time.Time `json:"timestamp" gorm:"not null;index"`
	Metadata     *string   `json:"metadata" gorm:"column:log_metadata;type:text"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error { return ErrAuditImmutable }

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error { return ErrAuditImmutable }
