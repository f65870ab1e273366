package model

import (
	"time"
)

// OTPPurpose scopes a one-time code to the flow that requested it
type OTPPurpose string

const (
	OTPPurposeSignup        OTPPurpose = "signup"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// Valid reports whether the purpose is one of the supported flows
func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeSignup, OTPPurposePasswordReset:
		return true
	}
	return false
}

// OTPRecord is the single outstanding challenge for a (purpose, recipient) key
type OTPRecord struct {
	Key       string     `json:"key" gorm:"primaryKey;size:320"` // purpose:recipient
	Purpose   OTPPurpose `json:"purpose" gorm:"size:32;not null"`
	Recipient string     `json:"recipient" gorm:"size:255;not null"`
	CodeHash  string     `json:"code_hash" gorm:"size:64;not null"` // SHA-256 hex, never the plain code
	IssuedAt  time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	Attempts  int        `json:"attempts" gorm:"not null;default:0"`
}

func (OTPRecord) TableName() string {
	return "otp_records"
}

// IsExpired reports whether the record can no longer match at now
func (o *OTPRecord) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
