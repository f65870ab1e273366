package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/quocanhngo/studymate/pkg/auth"
	"github.com/quocanhngo/studymate/pkg/clock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var blacklistEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestBlacklist(t *testing.T) (*TokenBlacklist, *miniredis.Miniredis, *clock.Fake) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clk := clock.NewFake(blacklistEpoch)
	return NewTokenBlacklist(rdb, clk, 24*time.Hour), mr, clk
}

func claimsAt(userID uuid.UUID, issued time.Time, ttl time.Duration) *auth.Claims {
	return &auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
}

func TestTokenBlacklist_Revoke(t *testing.T) {
	b, mr, clk := newTestBlacklist(t)
	ctx := context.Background()
	now := clk.Now()

	userID := uuid.New()
	revoked := claimsAt(userID, now, time.Hour)
	other := claimsAt(userID, now, time.Hour)

	require.NoError(t, b.Revoke(ctx, revoked))

	ok, err := b.IsRevoked(ctx, revoked)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.IsRevoked(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Hour, mr.TTL("blacklist:"+revoked.ID))
}

func TestTokenBlacklist_RevokeExpiredIsNoop(t *testing.T) {
	b, mr, clk := newTestBlacklist(t)
	now := clk.Now()

	c := claimsAt(uuid.New(), now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, b.Revoke(context.Background(), c))
	assert.False(t, mr.Exists("blacklist:"+c.ID))
}

func TestTokenBlacklist_RevokeAllForUser(t *testing.T) {
	b, _, _ := newTestBlacklist(t)
	ctx := context.Background()
	reset := blacklistEpoch

	userID := uuid.New()
	before := claimsAt(userID, reset.Add(-time.Minute), time.Hour)
	after := claimsAt(userID, reset.Add(time.Minute), time.Hour)
	someoneElse := claimsAt(uuid.New(), reset.Add(-time.Minute), time.Hour)

	require.NoError(t, b.RevokeAllForUser(ctx, userID, reset))

	ok, err := b.IsRevoked(ctx, before)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.IsRevoked(ctx, after)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.IsRevoked(ctx, someoneElse)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBlacklist_RevokeAllForUserSameSecond(t *testing.T) {
	b, _, _ := newTestBlacklist(t)
	ctx := context.Background()
	reset := blacklistEpoch.Add(700 * time.Millisecond)

	userID := uuid.New()
	earlierThatSecond := claimsAt(userID, blacklistEpoch.Add(200*time.Millisecond), time.Hour)
	nextSecond := claimsAt(userID, blacklistEpoch.Add(time.Second), time.Hour)

	require.NoError(t, b.RevokeAllForUser(ctx, userID, reset))

	ok, err := b.IsRevoked(ctx, earlierThatSecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.IsRevoked(ctx, nextSecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBlacklist_RevokeUsesInjectedClock(t *testing.T) {
	b, mr, clk := newTestBlacklist(t)
	c := claimsAt(uuid.New(), clk.Now(), time.Hour)

	clk.Advance(45 * time.Minute)
	require.NoError(t, b.Revoke(context.Background(), c))
	assert.Equal(t, 15*time.Minute, mr.TTL("blacklist:"+c.ID))
}
