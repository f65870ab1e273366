package model

import "github.com/google/uuid"

// ========== Auth DTOs ==========

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// ========== OTP DTOs ==========

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type ResendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CancelOTPRequest withdraws a code; presenting the code proves the caller
// received it
type CancelOTPRequest struct {
	Email   string     `json:"email" binding:"required,email"`
	Purpose OTPPurpose `json:"purpose" binding:"required,oneof=signup password_reset"`
	Code    string     `json:"code" binding:"required,len=6,numeric"`
}

// OTPStatusRequest only covers signup; reset codes stay unobservable
type OTPStatusRequest struct {
	Email   string     `form:"email" binding:"required,email"`
	Purpose OTPPurpose `form:"purpose" binding:"required,oneof=signup"`
}

type OTPSentResponse struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	ExpiresIn int    `json:"expires_in"` // seconds until the code expires
}

type OTPStatusResponse struct {
	Email       string     `json:"email"`
	Purpose     OTPPurpose `json:"purpose"`
	Outstanding bool       `json:"outstanding"`
	TTL         int        `json:"ttl"` // configured lifetime of a code, seconds
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required,len=6,numeric"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ========== Google OAuth DTOs ==========

type GoogleUserInfo struct {
	GoogleID string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture"`
	Verified bool   `json:"email_verified"`
}

// ========== Profile DTOs ==========

type UpdateProfileRequest struct {
	Name                  string `json:"name" binding:"max=100"`
	Avatar                string `json:"-"`
	IsNotificationEnabled *bool  `json:"is_notification_enabled"`
}

type RegisterDeviceRequest struct {
	FCMToken string `json:"fcm_token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=android ios web"`
}

// ========== WebSocket events ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Account security events pushed to a student's open sessions
const (
	WSEventEmailVerified   = "email_verified"
	WSEventPasswordChanged = "password_changed"
	WSEventSessionRevoked  = "session_revoked"
)

type AccountEvent struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	At     int64     `json:"at"` // unix seconds
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// OTPErrorResponse is returned when a submitted code is rejected
type OTPErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Reason            string `json:"reason"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
