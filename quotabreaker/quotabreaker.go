// Package quotabreaker is the simpler sibling the core breaker package's
// documentation invites: instead of tracking an error rate over a sliding
// window, it routes to the secondary once a per-period request quota is
// exhausted. It shares the same atomic-increment-with-TTL primitive the
// core store contract exposes (breaker.Store.Record/ReadWindow), reused
// here rather than reimplemented, so a quota breaker and a failure-rate
// breaker protecting the same endpoint can sit on the same Redis instance
// with the same operational tooling.
//
// Grounded on Redis token-bucket Lua script in
// internal/ratelimit/redis_backend.go, adapted from "tokens remaining" to
// "quota remaining, divert to secondary once exhausted".
package quotabreaker

import (
	"context"
	"time"

	"github.com/oriys/distcb/breaker"
)

// Config configures one quota breaker.
type Config struct {
	// Key identifies this quota breaker's counter namespace.
	Key string
	// Limit is the maximum number of calls allowed per Period.
	Limit int64
	// Period is the fixed, aligned window the Limit applies to; it is also
	// used as the Store bucket width, so Limit is enforced over exactly one
	// bucket per Period.
	Period time.Duration
}

// Breaker routes to the secondary endpoint once Limit calls have been
// recorded within the current Period. Unlike the core Engine it has no
// Open/HalfOpen recovery ramp: once the period rolls over, the quota
// simply resets.
type Breaker struct {
	cfg   Config
	store breaker.Store
	clock breaker.Clock
}

// New constructs a quota Breaker backed by store. clock defaults to
// breaker.SystemClock when nil.
func New(cfg Config, store breaker.Store, clock breaker.Clock) *Breaker {
	if clock == nil {
		clock = breaker.SystemClock{}
	}
	return &Breaker{cfg: cfg, store: store, clock: clock}
}

// Allow reports whether the caller should use the primary endpoint. It
// records the attempt first (so the count reflects every caller that
// asked, including ones ultimately denied) and diverts once the quota for
// the current period is exhausted.
func (b *Breaker) Allow(ctx context.Context, primary, secondary string) (string, error) {
	now := b.clock.Now()
	if err := b.store.Record(ctx, b.cfg.Key, true, now, b.cfg.Period, b.cfg.Period); err != nil {
		return "", err
	}
	// A zero window reads only the bucket of the current period.
	used, _, err := b.store.ReadWindow(ctx, b.cfg.Key, now, 0, b.cfg.Period)
	if err != nil {
		return "", err
	}
	if used > b.cfg.Limit {
		return secondary, nil
	}
	return primary, nil
}
