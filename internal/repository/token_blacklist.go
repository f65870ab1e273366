package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/pkg/auth"
	"github.com/quocanhngo/studymate/pkg/clock"
	"github.com/redis/go-redis/v9"
)

// TokenBlacklist revokes access tokens in Redis until they would expire anyway
type TokenBlacklist struct {
	rdb    redis.UniversalClient
	clock  clock.Clocker
	maxTTL time.Duration // lifetime of a freshly issued token
}

// NewTokenBlacklist creates a blacklist; a nil clock reads the system time
func NewTokenBlacklist(rdb redis.UniversalClient, clk clock.Clocker, maxTTL time.Duration) *TokenBlacklist {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenBlacklist{rdb: rdb, clock: clk, maxTTL: maxTTL}
}

func tokenKey(id string) string { return "blacklist:" + id }
func userCutoffKey(id uuid.UUID) string { return "blacklist:user:" + id.String() }

// Revoke blacklists a single token by its ID
func (b *TokenBlacklist) Revoke(ctx context.Context, claims *auth.Claims) error {
	ttl := claims.RemainingTTL(b.clock.Now())
	if ttl <= 0 || claims.ID == "" {
		return nil
	}
	return b.rdb.Set(ctx, tokenKey(claims.ID), "revoked", ttl).Err()
}

// RevokeAllForUser invalidates every token the user was issued before at.
// iat only has second precision, so tokens issued during the same second as
// at are revoked too.
func (b *TokenBlacklist) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return b.rdb.Set(ctx, userCutoffKey(userID), at.Unix(), b.maxTTL).Err()
}

// IsRevoked reports whether the token was revoked on its own or by a
// user-wide cutoff
func (b *TokenBlacklist) IsRevoked(ctx context.Context, claims *auth.Claims) (bool, error) {
	if claims.ID != "" {
		n, err := b.rdb.Exists(ctx, tokenKey(claims.ID)).Result()
		if err != nil {
			return false, fmt.Errorf("blacklist lookup failed: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}

	raw, err := b.rdb.Get(ctx, userCutoffKey(claims.UserID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blacklist lookup failed: %w", err)
	}

	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || claims.IssuedAt == nil {
		return true, nil
	}
	return claims.IssuedAt.Unix() <= cutoff, nil
}
