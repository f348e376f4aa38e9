package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/skyguide-inc/skyguide/internal/shared/constants"
)

// SessionModel is the sessions row. The plaintext token never reaches it.
type SessionModel struct {
	ID            string         `gorm:"primarykey;size:36"`
	UserID        string         `gorm:"not null;size:36;index:idx_sessions_user_status,priority:1"`
	TokenHash     string         `gorm:"not null;size:64;uniqueIndex"`
	DeviceInfo    datatypes.JSON `gorm:"type:json"`
	IPAddress     string         `gorm:"size:64"`
	Status        string         `gorm:"not null;size:16;index:idx_sessions_user_status,priority:2"`
	LastActivity  time.Time      `gorm:"not null"`
	ExpiresAt     time.Time      `gorm:"not null;index"`
	InvalidatedAt *time.Time
	CreatedAt     time.Time
}

func (SessionModel) TableName() string {
	return constants.TableSessions
}
