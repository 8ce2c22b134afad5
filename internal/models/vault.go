package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VaultItem is a named container of encrypted financial records.
type VaultItem struct {
	ID        string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title     string        `json:"title" gorm:"not null"`
	CreatedAt time.Time     `json:"created_at"`
	Records   []VaultRecord `json:"-" gorm:"foreignKey:VaultItemID;constraint:OnDelete:CASCADE"`
}

func (v *VaultItem) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// VaultRecord holds one encrypted RecordPayload. Plaintext is never stored.
type VaultRecord struct {
	ID               string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	VaultItemID      string    `json:"vault_item_id" gorm:"type:varchar(36);not null;index"`
	EncryptedPayload string    `json:"-" gorm:"type:text;not null"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *VaultRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RecordPayload is the decrypted shape of a VaultRecord.
type RecordPayload struct {
	InvestmentName string  `json:"investment_name"`
	InvestedAmount float64 `json:"invested_amount"`
	InvestmentDate string  `json:"investment_date"`
	InstrumentType string  `json:"instrument_type"`
	Remarks        string  `json:"remarks"`
}

// DecryptedRecord pairs a record id with its plaintext payload.
type DecryptedRecord struct {
	ID string `json:"id"`
	RecordPayload
}
