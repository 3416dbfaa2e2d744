// Package redisstore backs breaker.Store with Redis, using the key layout
// that is normative for interoperating engines:
//
//	cb:{key}:b:{alignedEpoch}   hash with fields s, f ; ttl = window + bucket
//	cb:{key}:latch              string: "Closed" | "Open" | "HalfOpen"
//	cb:{key}:probes             integer
//	cb:{key}:ramp               integer 0..100
//
// Grounded on internal/cache/redis.go (client wiring,
// key-prefixing, Ping/Close) and internal/ratelimit/redis_backend.go
// (atomic read-check-write expressed as a Lua script run via
// redis.NewScript(...).Run(ctx, client, keys, args...)).
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/distcb/breaker"
)

// recordScript atomically increments the success or failure field of the
// bucket at the aligned epoch and (re)sets its TTL, so a concurrent Record
// and expiry never race.
//
// KEYS[1] = bucket key
// ARGV[1] = field ("s" or "f")
// ARGV[2] = ttl seconds
var recordScript = redis.NewScript(`
redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
redis.call("EXPIRE", KEYS[1], ARGV[2])
return 1
`)

// probeScript implements TryAcquireProbe per the store contract: increment,
// set TTL on first acquisition, and back off if the cap was exceeded.
//
// KEYS[1] = probe key
// ARGV[1] = max probes
// ARGV[2] = ttl seconds
// Returns 1 if acquired, 0 if the cap was already reached.
var probeScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
    redis.call("DECR", KEYS[1])
    return 0
end
return 1
`)

// Config holds Redis connection settings for the store.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string // default "cb:"
}

// Store is a Redis-backed breaker.Store.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a Redis-backed store, connecting lazily on first use like
// the same pattern as a typical Redis cache wrapper.
func New(cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cb:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Store{client: client, prefix: prefix}
}

// NewFromClient wraps an existing *redis.Client, mirroring the
// cache.NewRedisCacheFromClient for callers that already manage a shared
// connection pool.
func NewFromClient(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "cb:"
	}
	return &Store{client: client, prefix: keyPrefix}
}

// Ping verifies connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) bucketKey(key string, epoch int64) string {
	return fmt.Sprintf("%s%s:b:%d", s.prefix, key, epoch)
}

func (s *Store) latchKey(key string) string { return s.prefix + key + ":latch" }
func (s *Store) probeKey(key string) string { return s.prefix + key + ":probes" }
func (s *Store) rampKey(key string) string  { return s.prefix + key + ":ramp" }

func align(t time.Time, bucket time.Duration) int64 {
	width := int64(bucket / time.Second)
	if width <= 0 {
		width = 1
	}
	return (t.Unix() / width) * width
}

func (s *Store) Record(ctx context.Context, key string, success bool, timestamp time.Time, window, bucket time.Duration) error {
	epoch := align(timestamp, bucket)
	field := "f"
	if success {
		field = "s"
	}
	ttlSeconds := int64((window + bucket) / time.Second)
	return recordScript.Run(ctx, s.client, []string{s.bucketKey(key, epoch)}, field, ttlSeconds).Err()
}

func (s *Store) ReadWindow(ctx context.Context, key string, now time.Time, window, bucket time.Duration) (int64, int64, error) {
	lo := align(now.Add(-window), bucket)
	hi := align(now, bucket)
	width := int64(bucket / time.Second)
	if width <= 0 {
		width = 1
	}

	var epochs []int64
	for e := lo; e <= hi; e += width {
		epochs = append(epochs, e)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(epochs))
	for i, e := range epochs {
		cmds[i] = pipe.HMGet(ctx, s.bucketKey(key, e), "s", "f")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, err
	}

	var successes, failures int64
	for _, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue // bucket expired mid-aggregation: reads as zero
		}
		if raw, ok := vals[0].(string); ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				successes += n
			}
		}
		if raw, ok := vals[1].(string); ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				failures += n
			}
		}
	}
	return successes, failures, nil
}

func (s *Store) ReadLatch(ctx context.Context, key string) (breaker.State, bool, error) {
	val, err := s.client.Get(ctx, s.latchKey(key)).Result()
	if err == redis.Nil {
		return breaker.StateClosed, false, nil
	}
	if err != nil {
		return breaker.StateClosed, false, err
	}
	return parseState(val), true, nil
}

func (s *Store) SetLatch(ctx context.Context, key string, state breaker.State, ttl time.Duration) error {
	return s.client.Set(ctx, s.latchKey(key), state.String(), ttl).Err()
}

func (s *Store) TryAcquireProbe(ctx context.Context, key string, maxProbes int, ttl time.Duration) (bool, error) {
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	n, err := probeScript.Run(ctx, s.client, []string{s.probeKey(key)}, maxProbes, ttlSeconds).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ReleaseProbe(ctx context.Context, key string) error {
	return s.client.Decr(ctx, s.probeKey(key)).Err()
}

func (s *Store) ReadRamp(ctx context.Context, key string) (int, bool, error) {
	n, err := s.client.Get(ctx, s.rampKey(key)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *Store) SetRamp(ctx context.Context, key string, percent int, ttl time.Duration) error {
	return s.client.Set(ctx, s.rampKey(key), percent, ttl).Err()
}

func parseState(val string) breaker.State {
	switch val {
	case breaker.StateOpen.String():
		return breaker.StateOpen
	case breaker.StateHalfOpen.String():
		return breaker.StateHalfOpen
	default:
		return breaker.StateClosed
	}
}

var _ breaker.Store = (*Store)(nil)
