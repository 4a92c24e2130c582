package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account together with its single session slot.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	FullName string `json:"full_name"`
	Role     Role   `gorm:"type:varchar(16);not null;default:student;index" json:"role"`
	Disabled bool   `gorm:"default:false" json:"disabled"`

	// IsActive and SessionID are only ever written together through SessionState.Columns.
	IsActive          bool       `gorm:"default:false;index" json:"is_active"`
	SessionID         *string    `gorm:"uniqueIndex;size:64" json:"-"`
	LastLoginAt       *time.Time `json:"last_login_at"`
	LogoutScheduledAt *time.Time `gorm:"index" json:"logout_scheduled_at,omitempty"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present and the email is normalised before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = RoleStudent
	}
	return nil
}

// SessionState derives the session state from the row. Rows violating the
// is_active/session_id pairing are reported as inactive.
func (u *User) SessionState() SessionState {
	if u.SessionInconsistent() || !u.IsActive {
		return Inactive()
	}
	var since time.Time
	if u.LastLoginAt != nil {
		since = *u.LastLoginAt
	}
	return Active(*u.SessionID, since)
}

// SessionInconsistent reports whether is_active and session_id disagree.
func (u *User) SessionInconsistent() bool {
	hasAnchor := u.SessionID != nil && *u.SessionID != ""
	return u.IsActive != hasAnchor
}

// Locked reports whether the account is inside a lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
