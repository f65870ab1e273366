package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/delivery"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"github.com/quocanhngo/studymate/pkg/auth"
	"github.com/quocanhngo/studymate/pkg/clock"
	"github.com/quocanhngo/studymate/pkg/storage"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken          = errors.New("email already registered")
	ErrVerificationPending = errors.New("a verification code was already sent to this email. Enter it or request a new one with resend-otp")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailNotVerified    = errors.New("email not verified. Please check your inbox for the verification code")
	ErrGoogleAccount       = errors.New("this account uses Google login. Please sign in with Google")
	ErrGooglePasswordReset = errors.New("this account uses Google login. Password reset is not available")
	ErrDeliveryFailed      = errors.New("failed to send verification code")
	ErrAvatarDisabled      = errors.New("avatar uploads are not available")
)

// UserStore is the account persistence used by AuthService
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	VerifyEmail(ctx context.Context, userID uuid.UUID) error
	UpdatePendingRegistration(ctx context.Context, userID uuid.UUID, name, hashedPassword string) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, name, avatar string, notifEnabled *bool) error
	AddDevice(ctx context.Context, userID uuid.UUID, token, platform string) error
	GetOrCreateGoogleUser(ctx context.Context, info model.GoogleUserInfo) (*model.User, error)
}

// OTPLimiter throttles code reissue per purpose and recipient
type OTPLimiter interface {
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// TokenBlacklist revokes access tokens before they expire
type TokenBlacklist interface {
	Revoke(ctx context.Context, claims *auth.Claims) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// EventPublisher pushes account events to a user's open sessions
type EventPublisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, event model.WSEvent) error
}

// AuthDeps groups the collaborators of AuthService. Limiter, Events, Google
// and Storage are optional.
type AuthDeps struct {
	Users     UserStore
	OTP       *otp.Manager
	Limiter   OTPLimiter
	Delivery  delivery.Channel
	JWT       *auth.JWTManager
	Blacklist TokenBlacklist
	Events    EventPublisher
	Google    GoogleVerifier
	Storage   storage.Storage
	Clock     clock.Clocker
}

// AuthService handles authentication business logic
type AuthService struct {
	users     UserStore
	otp       *otp.Manager
	limiter   OTPLimiter
	delivery  delivery.Channel
	jwt       *auth.JWTManager
	blacklist TokenBlacklist
	events    EventPublisher
	google    GoogleVerifier
	storage   storage.Storage
	clock     clock.Clocker
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	return &AuthService{
		users:     d.Users,
		otp:       d.OTP,
		limiter:   d.Limiter,
		delivery:  d.Delivery,
		jwt:       d.JWT,
		blacklist: d.Blacklist,
		events:    d.Events,
		google:    d.Google,
		storage:   d.Storage,
		clock:     d.Clock,
	}
}

// ==================== Register (Email + OTP) ====================

// Register creates an unverified account and sends the signup code. Signing
// up again before verifying replaces the pending name and password, but only
// once the previous code has expired or been used up.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.OTPSentResponse, error) {
	email := otp.NormalizeRecipient(req.Email)

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("failed to find user")
	}

	if existing != nil {
		if existing.IsEmailVerified() || existing.AuthProvider == model.AuthProviderGoogle {
			return nil, ErrEmailTaken
		}
		pending, err := s.otp.HasValidOutstanding(ctx, model.OTPPurposeSignup, email)
		if err != nil {
			log.Printf("❌ Failed to check pending signup for %s: %v", email, err)
			return nil, errors.New("failed to check pending verification")
		}
		if pending {
			return nil, ErrVerificationPending
		}
	}

	// throttle before touching the account
	if err := s.allowOTP(ctx, model.OTPPurposeSignup, email); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	if existing != nil {
		if err := s.users.UpdatePendingRegistration(ctx, existing.ID, req.Name, string(hashedPassword)); err != nil {
			return nil, errors.New("failed to update pending registration")
		}
		existing.Name = req.Name
		return s.deliverOTP(ctx, existing, model.OTPPurposeSignup)
	}

	user := &model.User{
		Name:                  req.Name,
		Email:                 email,
		Password:              string(hashedPassword),
		AuthProvider:          model.AuthProviderEmail,
		IsNotificationEnabled: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, errors.New("failed to create user")
	}

	log.Printf("✅ Student registered: %s", user.Email)
	return s.deliverOTP(ctx, user, model.OTPPurposeSignup)
}

// VerifyOTP confirms the signup code and activates the account
func (s *AuthService) VerifyOTP(ctx context.Context, req model.VerifyOTPRequest) (*model.LoginResponse, error) {
	email := otp.NormalizeRecipient(req.Email)

	if err := s.checkCode(ctx, model.OTPPurposeSignup, email, req.Code); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrUserNotFound
	}

	if err := s.users.VerifyEmail(ctx, user.ID); err != nil {
		return nil, errors.New("failed to verify email")
	}
	s.resetLimiter(ctx, model.OTPPurposeSignup, email)

	if refreshed, err := s.users.FindByID(ctx, user.ID); err == nil {
		user = refreshed
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, user, model.WSEventEmailVerified)
	log.Printf("✅ Email verified: %s", user.Email)
	return resp, nil
}

// ResendOTP issues a new signup code for an unverified account
func (s *AuthService) ResendOTP(ctx context.Context, req model.ResendOTPRequest) (*model.OTPSentResponse, error) {
	user, err := s.users.FindByEmail(ctx, otp.NormalizeRecipient(req.Email))
	if err != nil {
		return nil, ErrUserNotFound
	}

	if user.IsEmailVerified() {
		return nil, ErrAlreadyVerified
	}

	return s.sendOTP(ctx, user, model.OTPPurposeSignup)
}

// ==================== Login ====================

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, otp.NormalizeRecipient(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.New("failed to find user")
	}

	if user.AuthProvider == model.AuthProviderGoogle || user.Password == "" {
		return nil, ErrGoogleAccount
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsEmailVerified() {
		return nil, ErrEmailNotVerified
	}

	return s.issueSession(ctx, user)
}

// LoginWithGoogle signs in with a Google ID token, creating the account on
// first use
func (s *AuthService) LoginWithGoogle(ctx context.Context, req model.GoogleLoginRequest) (*model.LoginResponse, error) {
	if s.google == nil {
		return nil, errors.New("google sign-in is not configured")
	}

	info, err := s.google.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	info.Email = otp.NormalizeRecipient(info.Email)

	user, err := s.users.GetOrCreateGoogleUser(ctx, *info)
	if err != nil {
		return nil, errors.New("failed to sign in with google")
	}

	return s.issueSession(ctx, user)
}

// Logout revokes the presented token until it would have expired
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if err := s.blacklist.Revoke(ctx, claims); err != nil {
		return errors.New("failed to revoke token")
	}
	log.Printf("👋 Logged out: %s", claims.Email)
	return nil
}

// ==================== Internal Helpers ====================

func (s *AuthService) issueSession(ctx context.Context, user *model.User) (*model.LoginResponse, error) {
	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Name)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Printf("⚠️  Failed to stamp last login for %s: %v", user.Email, err)
	}

	return &model.LoginResponse{
		Token: token,
		User:  user.ToResponse(),
	}, nil
}

func (s *AuthService) publish(ctx context.Context, user *model.User, eventType string) {
	if s.events == nil {
		return
	}
	event := model.WSEvent{
		Type: eventType,
		Payload: model.AccountEvent{
			UserID: user.ID,
			Email:  user.Email,
			At:     s.clock.Now().Unix(),
		},
	}
	if err := s.events.PublishToUser(ctx, user.ID, event); err != nil {
		log.Printf("⚠️  Failed to publish %s for %s: %v", eventType, user.Email, err)
	}
}
