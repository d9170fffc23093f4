// Package redis keeps pending activations in Redis so several service
// instances share enrollment state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/mfagate/internal/mfa/domain"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/redis/go-redis/v9"
)

// ExpiredGrace is how long a record outlives its ExpiresAt in Redis, so a
// late confirmation is answered with Expired rather than NotFound.
const ExpiredGrace = time.Hour

const DefaultPrefix = "mfa:pending"

var errBackend = errors.New("redis: pending store unavailable")

// incrAttempts only touches existing records so a concurrent delete is not
// resurrected as a partial hash.
var incrAttempts = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// sweepExpired drops index members scored below ARGV[1] along with their
// hashes. Hash keys are derived from ARGV[2], so every activation of one
// prefix must live on a single node.
var sweepExpired = redis.NewScript(`
local removed = 0
for _, id in ipairs(redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])) do
	redis.call('DEL', ARGV[2] .. id)
	removed = removed + redis.call('ZREM', KEYS[1], id)
end
return removed
`)

// PendingStore implements store.PendingActivations. Each activation is a
// hash; a sorted set scored by expiry (unix ms) indexes them for sweeps and
// counts.
type PendingStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ store.PendingActivations = (*PendingStore)(nil)

func NewPendingStore(rdb redis.UniversalClient, prefix string) *PendingStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &PendingStore{rdb: rdb, prefix: prefix}
}

func (s *PendingStore) key(userID string) string { return s.prefix + ":" + userID }
func (s *PendingStore) index() string            { return s.prefix + ":index" }

// Ping reports whether Redis is reachable.
func (s *PendingStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", errBackend, err)
	}
	return nil
}

func (s *PendingStore) PutPending(ctx context.Context, p domain.PendingActivation) error {
	key := s.key(p.UserID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"secret":           p.Secret,
			"label":            p.Label,
			"issuer":           p.Issuer,
			"provisioning_uri": p.ProvisioningURI,
			"attempts":         p.Attempts,
			"created_at":       p.CreatedAt.UnixNano(),
			"expires_at":       p.ExpiresAt.UnixNano(),
		})
		pipe.PExpireAt(ctx, key, p.ExpiresAt.Add(ExpiredGrace))
		pipe.ZAdd(ctx, s.index(), redis.Z{Score: float64(p.ExpiresAt.UnixMilli()), Member: p.UserID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errBackend, err)
	}
	return nil
}

func (s *PendingStore) GetPending(ctx context.Context, userID string) (domain.PendingActivation, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return domain.PendingActivation{}, fmt.Errorf("%w: %v", errBackend, err)
	}
	if len(fields) == 0 {
		return domain.PendingActivation{}, store.ErrNotFound
	}

	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return domain.PendingActivation{}, fmt.Errorf("redis: decode attempts: %w", err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return domain.PendingActivation{}, fmt.Errorf("redis: decode created_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return domain.PendingActivation{}, fmt.Errorf("redis: decode expires_at: %w", err)
	}

	return domain.PendingActivation{
		UserID:          userID,
		Secret:          fields["secret"],
		Label:           fields["label"],
		Issuer:          fields["issuer"],
		ProvisioningURI: fields["provisioning_uri"],
		Attempts:        attempts,
		CreatedAt:       time.Unix(0, created).UTC(),
		ExpiresAt:       time.Unix(0, expires).UTC(),
	}, nil
}

func (s *PendingStore) IncrementPendingAttempts(ctx context.Context, userID string) (int, error) {
	n, err := incrAttempts.Run(ctx, s.rdb, []string{s.key(userID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBackend, err)
	}
	if n < 0 {
		return 0, store.ErrNotFound
	}
	return n, nil
}

func (s *PendingStore) DeletePending(ctx context.Context, userID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(userID))
		pipe.ZRem(ctx, s.index(), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errBackend, err)
	}
	return nil
}

// DeleteExpiredPending removes every activation whose expiry is before now,
// including index entries whose hash Redis already evicted. The selection
// and the deletes run as one script so an activation re-issued mid-sweep
// keeps its fresh record.
func (s *PendingStore) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	n, err := sweepExpired.Run(ctx, s.rdb, []string{s.index()},
		strconv.FormatInt(now.UnixMilli(), 10), s.prefix+":").Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBackend, err)
	}
	return n, nil
}

func (s *PendingStore) CountPending(ctx context.Context, now time.Time) (int, error) {
	n, err := s.rdb.ZCount(ctx, s.index(), strconv.FormatInt(now.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errBackend, err)
	}
	return int(n), nil
}
