package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/internal/delivery"
	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"github.com/quocanhngo/studymate/internal/ratelimit"
	"github.com/quocanhngo/studymate/pkg/auth"
	"github.com/quocanhngo/studymate/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ============================================================================
// Test doubles
// ============================================================================

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*model.User
	devices map[uuid.UUID][]string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uuid.UUID]*model.User{}, devices: map[uuid.UUID][]string{}}
}

func (f *fakeUserStore) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserStore) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserStore) update(id uuid.UUID, fn func(u *model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUserStore) VerifyEmail(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(u *model.User) {
		now := time.Now()
		u.EmailVerifiedAt = &now
	})
}

func (f *fakeUserStore) UpdatePendingRegistration(_ context.Context, id uuid.UUID, name, hashed string) error {
	return f.update(id, func(u *model.User) {
		u.Name = name
		u.Password = hashed
	})
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id uuid.UUID, hashed string) error {
	return f.update(id, func(u *model.User) { u.Password = hashed })
}

func (f *fakeUserStore) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(u *model.User) {
		now := time.Now()
		u.LastLoginAt = &now
	})
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id uuid.UUID, name, avatar string, notif *bool) error {
	return f.update(id, func(u *model.User) {
		if name != "" {
			u.Name = name
		}
		if avatar != "" {
			u.Avatar = avatar
		}
		if notif != nil {
			u.IsNotificationEnabled = *notif
		}
	})
}

func (f *fakeUserStore) AddDevice(_ context.Context, id uuid.UUID, token, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices[id] = append(f.devices[id], token)
	return nil
}

func (f *fakeUserStore) GetOrCreateGoogleUser(ctx context.Context, info model.GoogleUserInfo) (*model.User, error) {
	if u, err := f.FindByEmail(ctx, info.Email); err == nil {
		return u, nil
	}
	now := time.Now()
	u := &model.User{Email: info.Email, Name: info.Name, AuthProvider: model.AuthProviderGoogle, EmailVerifiedAt: &now}
	if err := f.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (f *fakeUserStore) seed(t *testing.T, email, password string, verified bool, provider model.AuthProvider) *model.User {
	t.Helper()
	u := &model.User{Name: "Seed", Email: email, AuthProvider: provider, IsNotificationEnabled: true}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		u.Password = string(hash)
	}
	if verified {
		now := time.Now()
		u.EmailVerifiedAt = &now
	}
	require.NoError(t, f.Create(context.Background(), u))
	return u
}

type captureChannel struct {
	mu   sync.Mutex
	sent []delivery.Message
	err  error
}

func (c *captureChannel) Name() string { return "capture" }

func (c *captureChannel) Deliver(_ context.Context, msg delivery.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureChannel) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "no code was delivered")
	return c.sent[len(c.sent)-1].Code
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockLimiter) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockBlacklist struct {
	mock.Mock
}

func (m *mockBlacklist) Revoke(ctx context.Context, claims *auth.Claims) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *mockBlacklist) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.WSEvent
}

func (p *recordingPublisher) PublishToUser(_ context.Context, _ uuid.UUID, event model.WSEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc       *AuthService
	users     *fakeUserStore
	otp       *otp.Manager
	channel   *captureChannel
	blacklist *mockBlacklist
	events    *recordingPublisher
	clock     *clock.Fake
	jwt       *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	env := &testEnv{
		users:     newFakeUserStore(),
		otp:       otp.NewManager(otp.NewMemoryStore(), clk, otp.Config{}),
		channel:   &captureChannel{},
		blacklist: new(mockBlacklist),
		events:    &recordingPublisher{},
		clock:     clk,
		jwt:       auth.NewJWTManager("test-secret", time.Hour),
	}
	env.svc = NewAuthService(AuthDeps{
		Users:     env.users,
		OTP:       env.otp,
		Delivery:  env.channel,
		JWT:       env.jwt,
		Blacklist: env.blacklist,
		Events:    env.events,
		Clock:     clk,
	})
	return env
}

var ctx = context.Background()

// ============================================================================
// Registration
// ============================================================================

func TestRegisterAndVerify(t *testing.T) {
	env := newTestEnv(t)

	sent, err := env.svc.Register(ctx, model.RegisterRequest{Name: "Linh", Email: "  Linh@Example.com ", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "linh@example.com", sent.Email)
	assert.Equal(t, 300, sent.ExpiresIn)

	user, err := env.users.FindByEmail(ctx, "linh@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsEmailVerified())

	code := env.channel.lastCode(t)
	resp, err := env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "LINH@example.com", Code: code})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.User.EmailVerified)
	assert.Equal(t, []string{model.WSEventEmailVerified}, env.events.types())

	// one-time use
	_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "linh@example.com", Code: code})
	var otpErr *OTPError
	require.ErrorAs(t, err, &otpErr)
	assert.Equal(t, otp.StatusNotFound, otpErr.Result.Status)

	// verified accounts can sign in
	_, err = env.svc.Login(ctx, model.LoginRequest{Email: "linh@example.com", Password: "password123"})
	assert.NoError(t, err)
}

func TestRegister_VerifiedEmailTaken(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "taken@example.com", "password123", true, model.AuthProviderEmail)

	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "X", Email: "Taken@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Zero(t, env.channel.count())
}

func TestRegister_PendingCodeBlocksReRegister(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "Owner", Email: "p@example.com", Password: "owner-pass"})
	require.NoError(t, err)
	ownerCode := env.channel.lastCode(t)

	_, err = env.svc.Register(ctx, model.RegisterRequest{Name: "Someone", Email: "P@example.com", Password: "other-pass"})
	assert.ErrorIs(t, err, ErrVerificationPending)
	assert.Equal(t, 1, env.channel.count())

	user, err := env.users.FindByEmail(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Owner", user.Name)

	_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "p@example.com", Code: ownerCode})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, model.LoginRequest{Email: "p@example.com", Password: "other-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, model.LoginRequest{Email: "p@example.com", Password: "owner-pass"})
	assert.NoError(t, err)
}

func TestRegister_AfterExpiryReplacesPendingAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "First", Email: "p@example.com", Password: "password111"})
	require.NoError(t, err)
	first := env.channel.lastCode(t)

	env.clock.Advance(5*time.Minute + time.Second)

	_, err = env.svc.Register(ctx, model.RegisterRequest{Name: "Second", Email: "p@example.com", Password: "password222"})
	require.NoError(t, err)
	second := env.channel.lastCode(t)

	user, err := env.users.FindByEmail(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Second", user.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password222")))

	if first != second {
		_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "p@example.com", Code: first})
		var otpErr *OTPError
		require.ErrorAs(t, err, &otpErr)
		assert.Equal(t, otp.StatusMismatch, otpErr.Result.Status)
	}

	_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "p@example.com", Code: second})
	assert.NoError(t, err)
}

func TestRegister_ThrottledReRegisterLeavesAccountUntouched(t *testing.T) {
	env := newTestEnv(t)
	limiter := new(mockLimiter)
	limiter.On("Allow", mock.Anything, "signup:p@example.com").Return(nil).Once()
	limiter.On("Allow", mock.Anything, "signup:p@example.com").
		Return(&ratelimit.LimitError{Err: ratelimit.ErrTooManyRequests, RetryAfter: time.Minute}).Once()
	env.svc.limiter = limiter

	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "Owner", Email: "p@example.com", Password: "owner-pass"})
	require.NoError(t, err)

	// no code outstanding any more, so only the limiter stands in the way
	env.clock.Advance(5*time.Minute + time.Second)

	_, err = env.svc.Register(ctx, model.RegisterRequest{Name: "Someone", Email: "p@example.com", Password: "other-pass"})
	assert.ErrorIs(t, err, ErrOTPRateLimited)

	user, err := env.users.FindByEmail(ctx, "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Owner", user.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("owner-pass")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("other-pass")))
	assert.Equal(t, 1, env.channel.count())
	limiter.AssertExpectations(t)
}

func TestRegister_ThrottledNewAccountIsNotCreated(t *testing.T) {
	env := newTestEnv(t)
	limiter := new(mockLimiter)
	limiter.On("Allow", mock.Anything, "signup:new@example.com").
		Return(&ratelimit.LimitError{Err: ratelimit.ErrCooldown, RetryAfter: 30 * time.Second})
	env.svc.limiter = limiter

	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "New", Email: "new@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrOTPRateLimited)

	_, err = env.users.FindByEmail(ctx, "new@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestVerifyOTP_AttemptsExhausted(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	code := env.channel.lastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for _, remaining := range []int{2, 1, 0} {
		_, err := env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "a@example.com", Code: wrong})
		var otpErr *OTPError
		require.ErrorAs(t, err, &otpErr)
		assert.Equal(t, otp.StatusMismatch, otpErr.Result.Status)
		assert.Equal(t, remaining, otpErr.Result.Remaining)
	}

	// the correct code no longer works
	_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "a@example.com", Code: code})
	var otpErr *OTPError
	require.ErrorAs(t, err, &otpErr)
	assert.Equal(t, otp.StatusNotFound, otpErr.Result.Status)
}

func TestVerifyOTP_Expired(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	code := env.channel.lastCode(t)

	env.clock.Advance(5*time.Minute + time.Second)

	_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "a@example.com", Code: code})
	var otpErr *OTPError
	require.ErrorAs(t, err, &otpErr)
	assert.Equal(t, otp.StatusExpired, otpErr.Result.Status)
	assert.Equal(t, "OTP has expired; request a new one", otpErr.Error())
}

func TestResendOTP(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ResendOTP(ctx, model.ResendOTPRequest{Email: "ghost@example.com"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	env.users.seed(t, "done@example.com", "password123", true, model.AuthProviderEmail)
	_, err = env.svc.ResendOTP(ctx, model.ResendOTPRequest{Email: "done@example.com"})
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	env.users.seed(t, "pending@example.com", "password123", false, model.AuthProviderEmail)
	_, err = env.svc.ResendOTP(ctx, model.ResendOTPRequest{Email: "pending@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, env.channel.count())
}

func TestSendOTP_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	limiter := new(mockLimiter)
	limiter.On("Allow", mock.Anything, "signup:pending@example.com").
		Return(&ratelimit.LimitError{Err: ratelimit.ErrCooldown, RetryAfter: 42 * time.Second})
	env.svc.limiter = limiter

	env.users.seed(t, "pending@example.com", "password123", false, model.AuthProviderEmail)

	_, err := env.svc.ResendOTP(ctx, model.ResendOTPRequest{Email: "pending@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOTPRateLimited)

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 42*time.Second, rl.RetryAfter)
	assert.Zero(t, env.channel.count())

	ok, err := env.otp.HasValidOutstanding(ctx, model.OTPPurposeSignup, "pending@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	limiter.AssertExpectations(t)
}

func TestSendOTP_DeliveryFailureWithdrawsCode(t *testing.T) {
	env := newTestEnv(t)
	env.channel.err = errors.New("smtp down")

	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	ok, err := env.otp.HasValidOutstanding(ctx, model.OTPPurposeSignup, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ============================================================================
// Password reset
// ============================================================================

func TestForgotPassword_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.svc.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "Nobody@example.com"})
	require.NoError(t, err)
	assert.Equal(t, forgotPasswordMessage, resp.Message)
	assert.Equal(t, "nobody@example.com", resp.Email)
	assert.Zero(t, env.channel.count())
}

func TestForgotPassword_GoogleAccount(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "g@example.com", "", true, model.AuthProviderGoogle)

	_, err := env.svc.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "g@example.com"})
	assert.ErrorIs(t, err, ErrGooglePasswordReset)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.users.seed(t, "r@example.com", "oldpassword", true, model.AuthProviderEmail)
	env.blacklist.On("RevokeAllForUser", mock.Anything, user.ID, env.clock.Now()).Return(nil)

	resp, err := env.svc.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "r@example.com"})
	require.NoError(t, err)
	assert.Equal(t, forgotPasswordMessage, resp.Message)

	code := env.channel.lastCode(t)
	assert.Equal(t, model.OTPPurposePasswordReset, env.channel.sent[0].Purpose)

	// a reset code does not verify a signup
	_, err = env.svc.VerifyOTP(ctx, model.VerifyOTPRequest{Email: "r@example.com", Code: code})
	var otpErr *OTPError
	require.ErrorAs(t, err, &otpErr)
	assert.Equal(t, otp.StatusNotFound, otpErr.Result.Status)

	err = env.svc.ResetPassword(ctx, model.ResetPasswordRequest{Email: "r@example.com", Code: code, NewPassword: "newpassword"})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, model.LoginRequest{Email: "r@example.com", Password: "oldpassword"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, model.LoginRequest{Email: "r@example.com", Password: "newpassword"})
	assert.NoError(t, err)

	assert.Equal(t, []string{model.WSEventPasswordChanged}, env.events.types())
	env.blacklist.AssertExpectations(t)

	// consumed
	err = env.svc.ResetPassword(ctx, model.ResetPasswordRequest{Email: "r@example.com", Code: code, NewPassword: "another123"})
	require.ErrorAs(t, err, &otpErr)
}

// ============================================================================
// Outstanding codes
// ============================================================================

func TestCancelAndStatus(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Register(ctx, model.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)
	code := env.channel.lastCode(t)

	status, err := env.svc.OTPStatus(ctx, model.OTPStatusRequest{Email: "A@example.com", Purpose: model.OTPPurposeSignup})
	require.NoError(t, err)
	assert.True(t, status.Outstanding)
	assert.Equal(t, 300, status.TTL)
	assert.Equal(t, "a@example.com", status.Email)

	// a wrong code does not cancel and costs an attempt
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = env.svc.CancelOTP(ctx, model.CancelOTPRequest{Email: "a@example.com", Purpose: model.OTPPurposeSignup, Code: wrong})
	var otpErr *OTPError
	require.ErrorAs(t, err, &otpErr)
	assert.Equal(t, otp.StatusMismatch, otpErr.Result.Status)
	assert.Equal(t, 2, otpErr.Result.Remaining)

	status, err = env.svc.OTPStatus(ctx, model.OTPStatusRequest{Email: "a@example.com", Purpose: model.OTPPurposeSignup})
	require.NoError(t, err)
	assert.True(t, status.Outstanding)

	require.NoError(t, env.svc.CancelOTP(ctx, model.CancelOTPRequest{Email: "a@example.com", Purpose: model.OTPPurposeSignup, Code: code}))

	status, err = env.svc.OTPStatus(ctx, model.OTPStatusRequest{Email: "a@example.com", Purpose: model.OTPPurposeSignup})
	require.NoError(t, err)
	assert.False(t, status.Outstanding)

	// the account was not verified by cancelling
	user, err := env.users.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsEmailVerified())
}

func TestOTPStatus_PasswordResetIsNotReported(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "r@example.com", "oldpassword", true, model.AuthProviderEmail)

	_, err := env.svc.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "r@example.com"})
	require.NoError(t, err)

	_, err = env.svc.OTPStatus(ctx, model.OTPStatusRequest{Email: "r@example.com", Purpose: model.OTPPurposePasswordReset})
	assert.ErrorIs(t, err, ErrStatusUnavailable)
}

// ============================================================================
// Login / logout / profile
// ============================================================================

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.users.seed(t, "pending@example.com", "password123", false, model.AuthProviderEmail)
	env.users.seed(t, "ok@example.com", "password123", true, model.AuthProviderEmail)
	env.users.seed(t, "g@example.com", "", true, model.AuthProviderGoogle)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"unknown email", "nobody@example.com", "password123", ErrInvalidCredentials},
		{"wrong password", "ok@example.com", "nope", ErrInvalidCredentials},
		{"unverified", "pending@example.com", "password123", ErrEmailNotVerified},
		{"google account", "g@example.com", "password123", ErrGoogleAccount},
		{"success", "OK@example.com", "password123", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.svc.Login(ctx, model.LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			claims, err := env.jwt.ValidateToken(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, "ok@example.com", claims.Email)
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	claims := &auth.Claims{UserID: uuid.New(), Email: "a@example.com"}

	env.blacklist.On("Revoke", mock.Anything, claims).Return(nil).Once()
	assert.NoError(t, env.svc.Logout(ctx, claims))

	env.blacklist.On("Revoke", mock.Anything, claims).Return(errors.New("redis down")).Once()
	assert.Error(t, env.svc.Logout(ctx, claims))
	env.blacklist.AssertExpectations(t)
}

type stubGoogle struct {
	info *model.GoogleUserInfo
	err  error
}

func (s stubGoogle) Verify(context.Context, string) (*model.GoogleUserInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.info
	return &cp, nil
}

func TestLoginWithGoogle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.LoginWithGoogle(ctx, model.GoogleLoginRequest{IDToken: "x"})
	assert.Error(t, err)

	env.svc.google = stubGoogle{info: &model.GoogleUserInfo{GoogleID: "123", Email: "Student@Gmail.com", Name: "Student", Verified: true}}
	resp, err := env.svc.LoginWithGoogle(ctx, model.GoogleLoginRequest{IDToken: "x"})
	require.NoError(t, err)
	assert.Equal(t, "student@gmail.com", resp.User.Email)
	assert.Equal(t, model.AuthProviderGoogle, resp.User.AuthProvider)

	env.svc.google = stubGoogle{err: errors.New("invalid google token")}
	_, err = env.svc.LoginWithGoogle(ctx, model.GoogleLoginRequest{IDToken: "x"})
	assert.Error(t, err)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	user := env.users.seed(t, "p@example.com", "password123", true, model.AuthProviderEmail)

	off := false
	resp, err := env.svc.UpdateProfile(ctx, user.ID, model.UpdateProfileRequest{Name: "Renamed", IsNotificationEnabled: &off}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", resp.Name)
	assert.False(t, resp.IsNotificationEnabled)

	_, err = env.svc.GetProfile(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, env.svc.RegisterDevice(ctx, user.ID, model.RegisterDeviceRequest{FCMToken: "tok", Platform: "android"}))
	assert.Equal(t, []string{"tok"}, env.users.devices[user.ID])
}
