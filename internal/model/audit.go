package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateFarm          = "CREATE_FARM"
	ActionCreateCertification = "CREATE_CERTIFICATION"
	ActionCreateUser          = "CREATE_USER"

	// Approval workflow actions
	ActionCreateApprovalRequest = "CREATE_APPROVAL_REQUEST"
	ActionApproveRequest        = "APPROVE_REQUEST"
	ActionRejectRequest         = "REJECT_REQUEST"
	ActionDirectApply           = "DIRECT_APPLY"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for CLI-driven changes
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
