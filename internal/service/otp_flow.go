package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/quocanhngo/studymate/internal/delivery"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"github.com/quocanhngo/studymate/internal/ratelimit"
	"golang.org/x/crypto/bcrypt"
)

const deliveryTimeout = 15 * time.Second

var (
	ErrOTPRateLimited    = errors.New("too many code requests")
	ErrStatusUnavailable = errors.New("code status is only available for signup")
)

// OTPError reports a rejected code together with the verification outcome
type OTPError struct {
	Result otp.VerifyResult
}

func (e *OTPError) Error() string {
	return e.Result.Message()
}

// RateLimitedError is returned when a code was requested too often. It
// matches ErrOTPRateLimited with errors.Is.
type RateLimitedError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return e.Reason
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrOTPRateLimited
}

// ==================== Forgot/Reset Password ====================

const forgotPasswordMessage = "If the email exists, a reset code has been sent"

// ForgotPassword sends a password reset code. Unknown addresses get the same
// answer without a code being issued.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) (*model.OTPSentResponse, error) {
	email := otp.NormalizeRecipient(req.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return &model.OTPSentResponse{
			Message:   forgotPasswordMessage,
			Email:     email,
			ExpiresIn: int(s.otp.TTL().Seconds()),
		}, nil
	}

	if user.AuthProvider == model.AuthProviderGoogle || user.Password == "" {
		return nil, ErrGooglePasswordReset
	}

	resp, err := s.sendOTP(ctx, user, model.OTPPurposePasswordReset)
	if err != nil {
		return nil, err
	}
	resp.Message = forgotPasswordMessage
	return resp, nil
}

// ResetPassword checks the reset code, sets the new password and signs out
// every existing session
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	email := otp.NormalizeRecipient(req.Email)

	if err := s.checkCode(ctx, model.OTPPurposePasswordReset, email, req.Code); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return ErrUserNotFound
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return errors.New("failed to update password")
	}
	s.resetLimiter(ctx, model.OTPPurposePasswordReset, email)

	if s.blacklist != nil {
		if err := s.blacklist.RevokeAllForUser(ctx, user.ID, s.clock.Now()); err != nil {
			log.Printf("⚠️  Failed to revoke sessions for %s: %v", user.Email, err)
		}
	}

	s.publish(ctx, user, model.WSEventPasswordChanged)
	log.Printf("🔐 Password reset: %s", user.Email)
	return nil
}

// ==================== Outstanding codes ====================

// CancelOTP withdraws the outstanding code of an abandoned flow. The caller
// must present the code; a wrong one counts as a failed attempt.
func (s *AuthService) CancelOTP(ctx context.Context, req model.CancelOTPRequest) error {
	email := otp.NormalizeRecipient(req.Email)
	if err := s.checkCode(ctx, req.Purpose, email, req.Code); err != nil {
		return err
	}
	log.Printf("🗑️  OTP cancelled [purpose=%s recipient=%s]", req.Purpose, email)
	return nil
}

// OTPStatus tells the signup code entry screen whether a code is still
// pending. Password reset codes are not reported.
func (s *AuthService) OTPStatus(ctx context.Context, req model.OTPStatusRequest) (*model.OTPStatusResponse, error) {
	if req.Purpose != model.OTPPurposeSignup {
		return nil, ErrStatusUnavailable
	}

	outstanding, err := s.otp.HasValidOutstanding(ctx, req.Purpose, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check code: %w", err)
	}

	return &model.OTPStatusResponse{
		Email:       otp.NormalizeRecipient(req.Email),
		Purpose:     req.Purpose,
		Outstanding: outstanding,
		TTL:         int(s.otp.TTL().Seconds()),
	}, nil
}

// sendOTP throttles, issues and delivers a code for user
func (s *AuthService) sendOTP(ctx context.Context, user *model.User, purpose model.OTPPurpose) (*model.OTPSentResponse, error) {
	if err := s.allowOTP(ctx, purpose, user.Email); err != nil {
		return nil, err
	}
	return s.deliverOTP(ctx, user, purpose)
}

// allowOTP consumes one issue from the limiter for (purpose, email)
func (s *AuthService) allowOTP(ctx context.Context, purpose model.OTPPurpose, email string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Allow(ctx, otp.Key(purpose, otp.NormalizeRecipient(email)))
	if err == nil {
		return nil
	}
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		log.Printf("⚠️  OTP request throttled [purpose=%s recipient=%s]", purpose, email)
		return &RateLimitedError{Reason: limitErr.Err.Error(), RetryAfter: limitErr.RetryAfter}
	}
	return fmt.Errorf("failed to check rate limit: %w", err)
}

// deliverOTP issues a code for user and delivers it. The code is withdrawn
// again when no channel could deliver it.
func (s *AuthService) deliverOTP(ctx context.Context, user *model.User, purpose model.OTPPurpose) (*model.OTPSentResponse, error) {
	code, _, err := s.otp.Issue(ctx, purpose, user.Email)
	if err != nil {
		log.Printf("❌ Failed to issue OTP for %s: %v", user.Email, err)
		return nil, errors.New("failed to issue verification code")
	}

	sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	err = s.delivery.Deliver(sendCtx, delivery.Message{
		User:      user,
		Purpose:   purpose,
		Code:      code,
		ExpiresIn: s.otp.TTL(),
	})
	if err != nil {
		log.Printf("❌ Failed to deliver OTP to %s: %v", user.Email, err)
		if err := s.otp.Invalidate(ctx, purpose, user.Email); err != nil {
			log.Printf("⚠️  Failed to withdraw undelivered OTP for %s: %v", user.Email, err)
		}
		return nil, ErrDeliveryFailed
	}

	return &model.OTPSentResponse{
		Message:   "Verification code sent to your email",
		Email:     user.Email,
		ExpiresIn: int(s.otp.TTL().Seconds()),
	}, nil
}

// checkCode runs a verification and turns a rejected code into *OTPError
func (s *AuthService) checkCode(ctx context.Context, purpose model.OTPPurpose, email, code string) error {
	result, err := s.otp.Verify(ctx, purpose, email, code)
	if err != nil {
		log.Printf("❌ OTP verification failed for %s: %v", email, err)
		return errors.New("failed to verify code")
	}
	if !result.OK() {
		return &OTPError{Result: result}
	}
	return nil
}

func (s *AuthService) resetLimiter(ctx context.Context, purpose model.OTPPurpose, email string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, otp.Key(purpose, email)); err != nil {
		log.Printf("⚠️  Failed to reset OTP rate limit for %s: %v", email, err)
	}
}
