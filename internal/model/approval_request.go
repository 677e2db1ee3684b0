package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestKind is the catalog mutation an approval request proposes
type RequestKind string

const (
	RequestCreate RequestKind = "create"
	RequestUpdate RequestKind = "update"
	RequestDelete RequestKind = "delete"
)

func (k RequestKind) Valid() bool {
	return k == RequestCreate || k == RequestUpdate || k == RequestDelete
}

// ApprovalStatus enum constants
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// DirectActionNotes is recorded on ledger entries synthesized for admin-authored changes
const DirectActionNotes = "direct action"

// ApprovalRequest is a ledger entry for a proposed product mutation.
// Status moves pending -> approved|rejected exactly once; Payload is never rewritten.
// ProductID has no foreign key so the entry outlives a deleted product.
type ApprovalRequest struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID   *uuid.UUID     `gorm:"type:uuid;index" json:"product_id"` // null for a pending create
	RequestType RequestKind    `gorm:"type:varchar(10);not null;index" json:"request_type"`
	RequestedBy uuid.UUID      `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester   *User          `gorm:"foreignKey:RequestedBy;constraint:OnDelete:RESTRICT" json:"requester,omitempty"`
	ReviewedBy  *uuid.UUID     `gorm:"type:uuid" json:"reviewed_by"`
	Status      string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes       *string        `gorm:"type:text" json:"notes"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"` // encoded proposal, see package payload
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	ReviewedAt  *time.Time     `json:"reviewed_at"`
}

func (a *ApprovalRequest) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether the request has already been decided.
func (a *ApprovalRequest) Terminal() bool {
	return a.Status != ApprovalPending
}
