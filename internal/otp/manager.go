// Package otp issues and verifies short-lived numeric codes that prove a
// student controls an email address during signup and password reset.
//
// Each (purpose, recipient) pair has at most one outstanding code. Issuing
// again replaces it, a correct verification consumes it, and a bounded number
// of wrong guesses destroys it. Expired records are removed lazily when they
// are next looked at, or by Sweep when the store supports it.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/pkg/clock"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
	DefaultRetention   = time.Hour
)

var (
	ErrInvalidPurpose   = errors.New("unsupported OTP purpose")
	ErrInvalidRecipient = errors.New("OTP recipient is required")
)

// Config tunes the manager. Zero values fall back to the defaults.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	// Retention is how long Sweep leaves an expired record in place so a
	// late verification still reports Expired rather than NotFound.
	Retention   time.Duration
}

// Manager owns every outstanding OTP record
type Manager struct {
	store       Store
	clock       clock.Clocker
	ttl         time.Duration
	maxAttempts int
	retention   time.Duration
	locks       *keyLocks

	generate func() (string, error)
}

// NewManager creates a manager over store. A nil store keeps records in
// memory and a nil clock reads the system time.
func NewManager(store Store, clk clock.Clocker, cfg Config) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Manager{
		store:       store,
		clock:       clk,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		retention:   cfg.Retention,
		locks:       newKeyLocks(),
		generate:    generateCode,
	}
}

// TTL returns how long an issued code stays valid
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// MaxAttempts returns how many wrong codes a record tolerates
func (m *Manager) MaxAttempts() int {
	return m.maxAttempts
}

// NormalizeRecipient returns the canonical lookup form of a recipient
func NormalizeRecipient(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}

// Key returns the store key for a purpose and an already normalized recipient
func Key(purpose model.OTPPurpose, recipient string) string {
	return string(purpose) + ":" + recipient
}

func (m *Manager) key(purpose model.OTPPurpose, recipient string) (string, string, error) {
	if !purpose.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}
	recipient = NormalizeRecipient(recipient)
	if recipient == "" {
		return "", "", ErrInvalidRecipient
	}
	return Key(purpose, recipient), recipient, nil
}

// Issue generates a fresh code for (purpose, recipient) and replaces any code
// already outstanding for that key. The caller is responsible for delivery.
func (m *Manager) Issue(ctx context.Context, purpose model.OTPPurpose, recipient string) (string, time.Time, error) {
	key, recipient, err := m.key(purpose, recipient)
	if err != nil {
		return "", time.Time{}, err
	}

	code, err := m.generate()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate OTP code: %w", err)
	}

	unlock := m.locks.lock(key)
	defer unlock()

	now := m.clock.Now()
	record := &model.OTPRecord{
		Key:       key,
		Purpose:   purpose,
		Recipient: recipient,
		CodeHash:  hashCode(code),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
		Attempts:  0,
	}
	if err := m.store.Put(ctx, key, record); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store OTP: %w", err)
	}

	log.Printf("🔑 OTP issued [purpose=%s recipient=%s expires=%s]", purpose, recipient, record.ExpiresAt.Format(time.RFC3339))
	return code, record.ExpiresAt, nil
}

// Verify checks a submitted code. Routine failures are reported through the
// result; the error is reserved for invalid input and store failures.
func (m *Manager) Verify(ctx context.Context, purpose model.OTPPurpose, recipient, code string) (VerifyResult, error) {
	key, recipient, err := m.key(purpose, recipient)
	if err != nil {
		return VerifyResult{}, err
	}

	unlock := m.locks.lock(key)
	defer unlock()

	record, err := m.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return VerifyResult{Status: StatusNotFound}, nil
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("failed to load OTP: %w", err)
	}

	if record.IsExpired(m.clock.Now()) {
		if err := m.store.Delete(ctx, key); err != nil {
			return VerifyResult{}, fmt.Errorf("failed to delete expired OTP: %w", err)
		}
		return VerifyResult{Status: StatusExpired}, nil
	}

	if record.Attempts >= m.maxAttempts {
		if err := m.store.Delete(ctx, key); err != nil {
			return VerifyResult{}, fmt.Errorf("failed to delete exhausted OTP: %w", err)
		}
		return VerifyResult{Status: StatusTooManyAttempts}, nil
	}

	if !codeMatches(code, record.CodeHash) {
		record.Attempts++
		remaining := m.maxAttempts - record.Attempts
		if remaining <= 0 {
			err = m.store.Delete(ctx, key)
		} else {
			err = m.store.Put(ctx, key, record)
		}
		if err != nil {
			return VerifyResult{}, fmt.Errorf("failed to record OTP attempt: %w", err)
		}
		log.Printf("⚠️  OTP mismatch [purpose=%s recipient=%s remaining=%d]", purpose, recipient, remaining)
		return VerifyResult{Status: StatusMismatch, Remaining: remaining}, nil
	}

	if err := m.store.Delete(ctx, key); err != nil {
		return VerifyResult{}, fmt.Errorf("failed to consume OTP: %w", err)
	}
	log.Printf("✅ OTP verified [purpose=%s recipient=%s]", purpose, recipient)
	return VerifyResult{Status: StatusOK}, nil
}

// HasValidOutstanding reports whether an unexpired code exists for the key.
// An expired record found here is deleted.
func (m *Manager) HasValidOutstanding(ctx context.Context, purpose model.OTPPurpose, recipient string) (bool, error) {
	key, _, err := m.key(purpose, recipient)
	if err != nil {
		return false, err
	}

	unlock := m.locks.lock(key)
	defer unlock()

	record, err := m.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load OTP: %w", err)
	}

	if record.IsExpired(m.clock.Now()) {
		if err := m.store.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("failed to delete expired OTP: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Invalidate drops any outstanding code for the key regardless of its state
func (m *Manager) Invalidate(ctx context.Context, purpose model.OTPPurpose, recipient string) error {
	key, recipient, err := m.key(purpose, recipient)
	if err != nil {
		return err
	}

	unlock := m.locks.lock(key)
	defer unlock()

	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate OTP: %w", err)
	}
	log.Printf("🗑️  OTP invalidated [purpose=%s recipient=%s]", purpose, recipient)
	return nil
}

// Sweep removes records that expired more than the retention period ago,
// when the store supports bulk deletion. Stores without Sweeper (redis
// expires keys itself) report zero.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	sw, ok := m.store.(Sweeper)
	if !ok {
		return 0, nil
	}
	return sw.DeleteExpired(ctx, m.clock.Now().Add(-m.retention))
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	if _, ok := m.store.(Sweeper); !ok {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				log.Printf("⚠️  OTP sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("🧹 OTP sweep removed %d expired record(s)", n)
			}
		}
	}
}
