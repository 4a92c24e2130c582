package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of an authentication or session event.
type AuditLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    *string        `gorm:"type:uuid;index" json:"user_id"`
	Username  string         `json:"username"`
	Action    string         `gorm:"not null;index" json:"action"`
	Result    string         `gorm:"not null" json:"result"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
