package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus tracks an AccessRequest through pending -> approved|rejected.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// AccessRequest is an employee's ask to one admin for access to one vault item.
type AccessRequest struct {
	ID          string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EmployeeID  string        `json:"employee_id" gorm:"type:varchar(36);not null;index:idx_request_employee_item"`
	AdminID     string        `json:"admin_id" gorm:"type:varchar(36);not null;index:idx_request_admin_status"`
	VaultItemID string        `json:"vault_item_id" gorm:"type:varchar(36);not null;index:idx_request_employee_item"`
	Reason      string        `json:"reason" gorm:"type:text;not null"`
	AccessType  AccessType    `json:"access_type" gorm:"type:varchar(8);not null;default:'read'"`
	Status      RequestStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending';index:idx_request_admin_status"`
	CreatedAt   time.Time     `json:"created_at"`
	DecidedAt   *time.Time    `json:"decided_at"`

	Employee  *User      `json:"-" gorm:"foreignKey:EmployeeID"`
	Admin     *User      `json:"-" gorm:"foreignKey:AdminID"`
	VaultItem *VaultItem `json:"-" gorm:"foreignKey:VaultItemID;constraint:OnDelete:CASCADE"`
}

func (r *AccessRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	if r.AccessType == "" {
		r.AccessType = AccessRead
	}
	return nil
}
