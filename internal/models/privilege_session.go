package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PrivilegeSession is a time-boxed grant for one user on one vault item.
// IsActive is advisory; LiveAt is the real test.
type PrivilegeSession struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string     `json:"user_id" gorm:"type:varchar(36);not null;index:idx_session_user_item"`
	VaultItemID string     `json:"vault_item_id" gorm:"type:varchar(36);not null;index:idx_session_user_item"`
	AccessType  AccessType `json:"access_type" gorm:"type:varchar(8);not null;default:'read'"`
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	IsActive    bool       `json:"is_active" gorm:"not null;default:true"`

	User      *User      `json:"-" gorm:"foreignKey:UserID"`
	VaultItem *VaultItem `json:"-" gorm:"foreignKey:VaultItemID;constraint:OnDelete:CASCADE"`
}

func (s *PrivilegeSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// LiveAt reports whether the session grants access at now.
func (s *PrivilegeSession) LiveAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// Stale reports a session still flagged active although it has expired.
func (s *PrivilegeSession) Stale(now time.Time) bool {
	return s.IsActive && !now.Before(s.ExpiresAt)
}
