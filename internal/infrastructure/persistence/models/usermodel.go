package models

import (
	"time"

	"github.com/skyguide-inc/skyguide/internal/shared/constants"
)

type UserModel struct {
	ID              string  `gorm:"primarykey;size:36"`
	Email           string  `gorm:"uniqueIndex;not null;size:255"`
	PasswordHash    *string `gorm:"size:255"`
	Provider        string  `gorm:"not null;size:32;index:idx_users_provider_subject,priority:1"`
	ProviderSubject *string `gorm:"size:255;index:idx_users_provider_subject,priority:2"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (UserModel) TableName() string {
	return constants.TableUsers
}

type ProfileModel struct {
	UserID             string `gorm:"primarykey;size:36"`
	Email              string `gorm:"not null;size:255"`
	FullName           string `gorm:"size:200"`
	IsAdmin            bool   `gorm:"not null;default:false"`
	SubscriptionStatus string `gorm:"not null;size:16;default:none"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ProfileModel) TableName() string {
	return constants.TableProfiles
}
