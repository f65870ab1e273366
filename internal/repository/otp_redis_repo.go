package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quocanhngo/studymate/internal/model"
	"github.com/quocanhngo/studymate/internal/otp"
	"github.com/quocanhngo/studymate/pkg/clock"
	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp:"

// OTPRedisRepository stores OTP records as JSON strings in Redis.
// Keys outlive ExpiresAt by the retention window so an expired code is still
// reported as expired, then Redis evicts it on its own.
type OTPRedisRepository struct {
	rdb       redis.UniversalClient
	clock     clock.Clocker
	retention time.Duration
}

func NewOTPRedisRepository(rdb redis.UniversalClient, clk clock.Clocker, retention time.Duration) *OTPRedisRepository {
	if clk == nil {
		clk = clock.New()
	}
	if retention < 0 {
		retention = 0
	}
	return &OTPRedisRepository{rdb: rdb, clock: clk, retention: retention}
}

// Get reads the record for a key
func (r *OTPRedisRepository) Get(ctx context.Context, key string) (*model.OTPRecord, error) {
	data, err := r.rdb.Get(ctx, otpKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec model.OTPRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode OTP record: %w", err)
	}
	return &rec, nil
}

// Put writes the record with a TTL of (ExpiresAt + retention - now)
func (r *OTPRedisRepository) Put(ctx context.Context, key string, record *model.OTPRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode OTP record: %w", err)
	}

	ttl := record.ExpiresAt.Add(r.retention).Sub(r.clock.Now())
	if ttl < time.Millisecond {
		// nothing left to observe; make sure no stale value lingers
		return r.rdb.Del(ctx, otpKeyPrefix+key).Err()
	}
	return r.rdb.Set(ctx, otpKeyPrefix+key, data, ttl).Err()
}

// Delete removes the record for a key
func (r *OTPRedisRepository) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, otpKeyPrefix+key).Err()
}
