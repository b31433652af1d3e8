package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	feedKeyFormat           = "feed:user:%d:v%d:g%d"
	feedGenerationKeyFormat = "feed:gen:user:%d"
)

// FeedKey is the cache key of a user's feed at a given friend-set version
// and content generation. A relationship change bumps the version and a
// post or comment change bumps the generation, so stale entries are never
// read again.
func FeedKey(userID uint, friendSetVersion, generation uint64) string {
	return fmt.Sprintf(feedKeyFormat, userID, friendSetVersion, generation)
}

// FeedGenerationKey holds the content generation counter of a user's feed.
func FeedGenerationKey(userID uint) string {
	return fmt.Sprintf(feedGenerationKeyFormat, userID)
}

// Store is a JSON cache over Redis. A Store without a client is a valid,
// always-missing cache.
type Store struct {
	client *redis.Client
}

// NewStore wraps client, which may be nil.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Enabled reports whether a Redis client is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, b, ttl).Err()
}

// Result says where an Aside value came from.
type Result string

const (
	Hit      Result = "hit"
	Miss     Result = "miss"
	Bypass   Result = "bypass"
	Degraded Result = "error"
)

// Aside tries Redis first; on a miss it calls fetch, which must populate
// dest, and stores dest with ttl. Redis failures never fail the read.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) (Result, error) {
	if !s.Enabled() {
		return Bypass, fetch()
	}

	result := Miss
	found, err := s.GetJSON(ctx, key, dest)
	switch {
	case err != nil:
		result = Degraded
	case found:
		return Hit, nil
	}

	if err := fetch(); err != nil {
		return result, err
	}

	// Store into cache (best-effort)
	_ = s.SetJSON(ctx, key, dest, ttl)
	return result, nil
}

// Generation reads the counter at key. A missing counter is generation 0.
func (s *Store) Generation(ctx context.Context, key string) (uint64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	gen, err := s.client.Get(ctx, key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Bump increments every counter in one round trip. Entries keyed by an
// older generation become unreachable and expire on their own.
func (s *Store) Bump(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, key)
		}
		return nil
	})
	return err
}

// Invalidate deletes keys. Missing keys are not an error.
func (s *Store) Invalidate(ctx context.Context, keys ...string) error {
	if !s.Enabled() || len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection; a disabled store is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Ping(ctx).Err()
}
