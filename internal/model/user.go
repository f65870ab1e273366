package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthProvider defines how the student signs in
type AuthProvider string

const (
	AuthProviderEmail  AuthProvider = "email"
	AuthProviderGoogle AuthProvider = "google"
)

// User is a student account. Email accounts stay unverified until the signup
// code is confirmed.
type User struct {
	ID              uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name            string       `json:"name" gorm:"size:100;not null"`
	Email           string       `json:"email" gorm:"uniqueIndex;not null;size:255"` // stored lower-cased
	Password        string       `json:"-" gorm:"size:255"`                          // empty for Google accounts
	Avatar          string       `json:"avatar" gorm:"size:500;default:''"`
	AuthProvider    AuthProvider `json:"auth_provider" gorm:"type:auth_provider;default:'email'"`
	GoogleID        *string      `json:"-" gorm:"uniqueIndex;size:255"`
	EmailVerifiedAt *time.Time   `json:"email_verified_at" gorm:"type:timestamptz"`

	IsNotificationEnabled bool           `json:"is_notification_enabled" gorm:"default:true"`
	LastLoginAt           *time.Time     `json:"last_login_at"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// UserResponse is the public view of a User
type UserResponse struct {
	ID                    uuid.UUID    `json:"id"`
	Name                  string       `json:"name"`
	Email                 string       `json:"email"`
	Avatar                string       `json:"avatar"`
	AuthProvider          AuthProvider `json:"auth_provider"`
	EmailVerified         bool         `json:"email_verified"`
	IsNotificationEnabled bool         `json:"is_notification_enabled"`
	LastLoginAt           *time.Time   `json:"last_login_at"`
	CreatedAt             time.Time    `json:"created_at"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:                    u.ID,
		Name:                  u.Name,
		Email:                 u.Email,
		Avatar:                u.Avatar,
		AuthProvider:          u.AuthProvider,
		EmailVerified:         u.IsEmailVerified(),
		IsNotificationEnabled: u.IsNotificationEnabled,
		LastLoginAt:           u.LastLoginAt,
		CreatedAt:             u.CreatedAt,
	}
}
