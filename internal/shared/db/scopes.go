package db

import (
	"time"

	"gorm.io/gorm"
)

// ActiveAt limits a sessions query to rows that are active and unexpired at now.
func ActiveAt(now time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ? AND expires_at > ?", "active", now)
	}
}

// ForUser limits a query to one user's rows.
func ForUser(userID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}
