package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(rdb, zap.NewNop(), 30*time.Second), mr
}

func TestIssueThenConsume(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tk, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, tk)

	userID, err := s.Consume(ctx, tk)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestConsumeIsSingleUse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tk, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	_, err = s.Consume(ctx, tk)
	require.NoError(t, err)

	_, err = s.Consume(ctx, tk)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeUnknownTicket(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Consume(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeExpiredTicket(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	tk, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	_, err = s.Consume(ctx, tk)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepRemovesExpiredIndexEntries(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	tk, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)
	// FastForward only moves miniredis's TTL clock; Sweep compares index
	// scores against the wall clock, so backdate the entry's deadline too.
	require.NoError(t, s.rdb.ZAdd(ctx, expiryIndexKey, redis.Z{Score: float64(time.Now().Add(-time.Second).Unix()), Member: tk}).Err())

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestSweepNoopWhenNothingExpired(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Issue(ctx, "user-1")
	require.NoError(t, err)

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), removed)
}
