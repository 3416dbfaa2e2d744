// Package memstore is a single-process reference implementation of
// breaker.Store. It satisfies the same contract a Redis-backed store
// would, making it suitable both for unit tests and for single-instance
// deployments that don't need cluster-wide coordination.
//
// Grounded on in-memory TTL cache (internal/cache/inmemory.go):
// a mutex-guarded map with lazy expiry checked on read, generalized here
// to four key namespaces (buckets, latch, probes, ramp) instead of one.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/distcb/breaker"
)

type bucketCounts struct {
	successes int64
	failures  int64
	expiresAt time.Time
}

type latchEntry struct {
	state     breaker.State
	expiresAt time.Time // zero means no expiry
}

type rampEntry struct {
	percent   int
	expiresAt time.Time
}

// Store is an in-memory breaker.Store. The zero value is not usable; build
// one with New.
type Store struct {
	mu      sync.Mutex
	buckets map[string]map[int64]*bucketCounts
	latches map[string]latchEntry
	probes  map[string]int
	probeExp map[string]time.Time
	ramps   map[string]rampEntry
	now     func() time.Time
}

// New returns an empty Store. nowFn defaults to time.Now when nil; tests
// may inject a deterministic clock.
func New(nowFn func() time.Time) *Store {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{
		buckets:  make(map[string]map[int64]*bucketCounts),
		latches:  make(map[string]latchEntry),
		probes:   make(map[string]int),
		probeExp: make(map[string]time.Time),
		ramps:    make(map[string]rampEntry),
		now:      nowFn,
	}
}

func align(t time.Time, bucket time.Duration) int64 {
	width := int64(bucket / time.Second)
	if width <= 0 {
		width = 1
	}
	return (t.Unix() / width) * width
}

func (s *Store) Record(_ context.Context, key string, success bool, timestamp time.Time, window, bucket time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch := align(timestamp, bucket)
	m, ok := s.buckets[key]
	if !ok {
		m = make(map[int64]*bucketCounts)
		s.buckets[key] = m
	}
	b, ok := m[epoch]
	if !ok {
		b = &bucketCounts{}
		m[epoch] = b
	}
	if success {
		b.successes++
	} else {
		b.failures++
	}
	b.expiresAt = s.now().Add(window + bucket)
	return nil
}

func (s *Store) ReadWindow(_ context.Context, key string, now time.Time, window, bucket time.Duration) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.buckets[key]
	if !ok {
		return 0, 0, nil
	}
	lo := align(now.Add(-window), bucket)
	hi := align(now, bucket)
	var successes, failures int64
	t := s.now()
	for epoch, b := range m {
		if epoch < lo || epoch > hi {
			continue
		}
		if b.expiresAt.Before(t) {
			continue // expired, reads as zero
		}
		successes += b.successes
		failures += b.failures
	}
	return successes, failures, nil
}

func (s *Store) ReadLatch(_ context.Context, key string) (breaker.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.latches[key]
	if !ok {
		return breaker.StateClosed, false, nil
	}
	if !e.expiresAt.IsZero() && e.expiresAt.Before(s.now()) {
		delete(s.latches, key)
		return breaker.StateClosed, false, nil
	}
	return e.state, true, nil
}

func (s *Store) SetLatch(_ context.Context, key string, state breaker.State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.latches[key] = latchEntry{state: state, expiresAt: exp}
	return nil
}

func (s *Store) TryAcquireProbe(_ context.Context, key string, maxProbes int, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.probeExp[key]; ok && exp.Before(s.now()) {
		s.probes[key] = 0
	}
	n := s.probes[key] + 1
	s.probes[key] = n
	if n == 1 {
		s.probeExp[key] = s.now().Add(ttl)
	}
	if n > maxProbes {
		s.probes[key]--
		return false, nil
	}
	return true, nil
}

func (s *Store) ReleaseProbe(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[key]--
	return nil
}

func (s *Store) ReadRamp(_ context.Context, key string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ramps[key]
	if !ok {
		return 0, false, nil
	}
	if e.expiresAt.Before(s.now()) {
		delete(s.ramps, key)
		return 0, false, nil
	}
	return e.percent, true, nil
}

func (s *Store) SetRamp(_ context.Context, key string, percent int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ramps[key] = rampEntry{percent: percent, expiresAt: s.now().Add(ttl)}
	return nil
}

var _ breaker.Store = (*Store)(nil)
