// Package ticket implements the single-use upgrade ticket store that gates
// the hub's real-time connection upgrade. A ticket binds a user id to a
// short-lived, one-time right to open a connection; it is issued at the end
// of an authenticated HTTP exchange and consumed exactly once when the
// client presents it to the upgrade endpoint.
package ticket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL is the upgrade ticket lifetime absent an explicit override.
const DefaultTTL = 30 * time.Second

const keyPrefix = "board_hub:ticket:"

// expiryIndexKey is a sorted set mirroring each ticket's expiry, swept
// periodically as a belt-and-suspenders cleanup of stale index entries.
// Redis already expires the primary key on its own; the sweep never
// affects consume correctness.
const expiryIndexKey = "board_hub:ticket:expiry"

// ErrNotFound is returned by Consume when the ticket is missing, already
// consumed, or expired.
var ErrNotFound = errors.New("ticket: not found or already consumed")

// Store issues and consumes single-use upgrade tickets backed by Redis.
type Store struct {
	rdb *redis.Client
	log *zap.Logger
	ttl time.Duration
}

// NewStore constructs a Store. ttl <= 0 uses DefaultTTL.
func NewStore(rdb *redis.Client, log *zap.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, log: log, ttl: ttl}
}

func redisKey(t string) string { return keyPrefix + t }

// Issue generates a random opaque ticket string bound to userID and
// persists it with the store's TTL. It is exposed over HTTP as
// POST /ticket.
func (s *Store) Issue(ctx context.Context, userID string) (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("ticket: generate: %w", err)
	}
	t := hex.EncodeToString(raw)

	ok, err := s.rdb.SetNX(ctx, redisKey(t), userID, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("ticket: issue: %w", err)
	}
	if !ok {
		// Vanishingly unlikely key collision; caller may retry Issue.
		return "", fmt.Errorf("ticket: issue: key collision")
	}

	expiresAt := float64(time.Now().Add(s.ttl).Unix())
	if err := s.rdb.ZAdd(ctx, expiryIndexKey, redis.Z{Score: expiresAt, Member: t}).Err(); err != nil {
		s.log.Warn("ticket: failed to index expiry", zap.Error(err))
	}

	return t, nil
}

// Consume atomically reads and deletes the ticket, returning the bound user
// id. Returns ErrNotFound if the ticket is missing, already consumed, or
// expired — at most one Consume call for a given ticket ever succeeds.
func (s *Store) Consume(ctx context.Context, t string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, redisKey(t)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ticket: consume: %w", err)
	}

	if err := s.rdb.ZRem(ctx, expiryIndexKey, t).Err(); err != nil {
		s.log.Warn("ticket: failed to remove expiry index entry", zap.Error(err))
	}

	return userID, nil
}

// Sweep removes expiry-index entries whose deadline has passed. It is safe
// to call concurrently with Issue/Consume and never deletes a ticket that
// is still live — the primary key's own TTL is the source of truth.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	now := float64(time.Now().Unix())
	members, err := s.rdb.ZRangeByScore(ctx, expiryIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("ticket: sweep scan: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	removed, err := s.rdb.ZRem(ctx, expiryIndexKey, toAny(members)...).Result()
	if err != nil {
		return 0, fmt.Errorf("ticket: sweep remove: %w", err)
	}

	s.log.Debug("ticket: swept expired index entries", zap.Int64("removed", removed))
	return removed, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
