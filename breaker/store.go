package breaker

import (
	"context"
	"time"
)

// State is the three-way circuit state shared cluster-wide via the Store
// latch. Closed is the zero value and is also what an absent latch means.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Store is the distributed key-value abstraction the engine delegates all
// durable, cluster-visible state to. One logical breaker occupies four key
// namespaces under Key: time-aligned buckets, a state latch, a probe
// semaphore, and a ramp percentage. Implementations must be safe for
// concurrent use by many processes; see breaker/memstore and
// breaker/redisstore for the reference implementations.
type Store interface {
	// Record atomically increments the success or failure counter of the
	// bucket at align(timestamp, bucket) and refreshes that bucket's TTL
	// to window+bucket.
	Record(ctx context.Context, key string, success bool, timestamp time.Time, window, bucket time.Duration) error

	// ReadWindow sums the success and failure counters over every bucket
	// whose aligned epoch lies in [align(now-window), align(now)].
	// Missing buckets read as zero.
	ReadWindow(ctx context.Context, key string, now time.Time, window, bucket time.Duration) (successes, failures int64, err error)

	// ReadLatch returns the current latch state and whether it was
	// present. An absent latch means Closed.
	ReadLatch(ctx context.Context, key string) (state State, present bool, err error)

	// SetLatch writes the latch state. A zero ttl means no expiry.
	SetLatch(ctx context.Context, key string, state State, ttl time.Duration) error

	// TryAcquireProbe atomically increments the probe counter, setting its
	// TTL on first acquisition, and reports whether the increment kept the
	// counter at or below maxProbes. On failure the counter is
	// decremented back so it never latches above the cap.
	TryAcquireProbe(ctx context.Context, key string, maxProbes int, ttl time.Duration) (bool, error)

	// ReleaseProbe decrements the probe counter. It may transiently go
	// negative; callers must tolerate that and rely on TTL self-healing.
	ReleaseProbe(ctx context.Context, key string) error

	// ReadRamp returns the current ramp percentage and whether it is
	// present. An absent ramp means 100 (no routing restriction).
	ReadRamp(ctx context.Context, key string) (percent int, present bool, err error)

	// SetRamp writes the ramp percentage with the given TTL.
	SetRamp(ctx context.Context, key string, percent int, ttl time.Duration) error
}
