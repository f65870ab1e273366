package model

import (
	"time"

	"github.com/google/uuid"
)

// UserDevice is a push target (FCM registration token) for a student
type UserDevice struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_user_token"`
	FCMToken     string    `json:"-" gorm:"not null;uniqueIndex:idx_user_token"`
	Platform     string    `json:"platform" gorm:"size:20;default:'unknown'"` // android, ios, web
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}
