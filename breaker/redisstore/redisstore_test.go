package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/distcb/breaker"
)

// newTestStore connects to a local Redis instance and skips the test if
// one isn't reachable, mirroring the newTestRedisClient pattern
// in internal/ratelimit/redis_backend_test.go.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(Config{Addr: "localhost:6379", KeyPrefix: "cbtest:"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndReadWindow_Redis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "rec-" + t.Name()

	now := time.Now()
	window := 30 * time.Second
	bucket := 10 * time.Second

	if err := s.Record(ctx, key, true, now, window, bucket); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, key, false, now, window, bucket); err != nil {
		t.Fatal(err)
	}

	successes, failures, err := s.ReadWindow(ctx, key, now, window, bucket)
	if err != nil {
		t.Fatal(err)
	}
	if successes != 1 || failures != 1 {
		t.Fatalf("expected 1/1, got %d/%d", successes, failures)
	}
}

func TestLatchRoundTrip_Redis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "latch-" + t.Name()

	if err := s.SetLatch(ctx, key, breaker.StateHalfOpen, time.Second); err != nil {
		t.Fatal(err)
	}
	state, present, err := s.ReadLatch(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !present || state != breaker.StateHalfOpen {
		t.Fatalf("expected HalfOpen, got present=%v state=%s", present, state)
	}

	time.Sleep(1100 * time.Millisecond)
	_, present, err = s.ReadLatch(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected the latch to have expired")
	}
}

func TestLatchAbsentReadsAsClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, present, err := s.ReadLatch(ctx, "never-set-"+t.Name())
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected no latch to be present")
	}
	if state != breaker.StateClosed {
		t.Fatalf("expected the zero value to read as Closed, got %s", state)
	}
}

func TestProbeCapAndRelease_Redis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "probe-" + t.Name()

	ok, err := s.TryAcquireProbe(ctx, key, 1, 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first acquire, ok=%v err=%v", ok, err)
	}

	ok, err = s.TryAcquireProbe(ctx, key, 1, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected the second probe to be capped")
	}

	if err := s.ReleaseProbe(ctx, key); err != nil {
		t.Fatal(err)
	}
	ok, err = s.TryAcquireProbe(ctx, key, 1, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a free slot after release")
	}
}

func TestRampRoundTrip_Redis(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "ramp-" + t.Name()

	if err := s.SetRamp(ctx, key, 50, time.Second); err != nil {
		t.Fatal(err)
	}
	percent, present, err := s.ReadRamp(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !present || percent != 50 {
		t.Fatalf("expected 50, got present=%v percent=%d", present, percent)
	}
}

func TestNewFromClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()

	s := NewFromClient(client, "")
	if s.prefix != "cb:" {
		t.Fatalf("expected the default prefix, got %q", s.prefix)
	}
}
