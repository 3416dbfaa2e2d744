package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/distcb/breaker"
)

func TestRecordAndReadWindow(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	window := 60 * time.Second
	bucket := 10 * time.Second

	if err := s.Record(ctx, "k", true, base, window, bucket); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "k", false, base.Add(5*time.Second), window, bucket); err != nil {
		t.Fatal(err)
	}

	successes, failures, err := s.ReadWindow(ctx, "k", base.Add(5*time.Second), window, bucket)
	if err != nil {
		t.Fatal(err)
	}
	if successes != 1 || failures != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %d/%d", successes, failures)
	}
}

func TestReadWindowHonorsCutoff(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	window := 30 * time.Second
	bucket := 10 * time.Second

	if err := s.Record(ctx, "k", true, base, window, bucket); err != nil {
		t.Fatal(err)
	}

	// Move far enough forward that the original bucket falls outside the
	// window cutoff, even though it has not expired from the map (the
	// store's own clock stays at base).
	later := base.Add(5 * time.Minute)
	successes, failures, err := s.ReadWindow(ctx, "k", later, window, bucket)
	if err != nil {
		t.Fatal(err)
	}
	if successes != 0 || failures != 0 {
		t.Fatalf("expected the old bucket to fall outside the window, got %d/%d", successes, failures)
	}
}

func TestLatchTTLExpiry(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	if err := s.SetLatch(ctx, "k", breaker.StateOpen, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	state, present, err := s.ReadLatch(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !present || state != breaker.StateOpen {
		t.Fatalf("expected Open latch present, got present=%v state=%s", present, state)
	}

	clock = base.Add(6 * time.Second)
	_, present, err = s.ReadLatch(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected latch to have expired")
	}
}

func TestLatchZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	if err := s.SetLatch(ctx, "k", breaker.StateClosed, 0); err != nil {
		t.Fatal(err)
	}
	clock = base.Add(365 * 24 * time.Hour)
	_, present, err := s.ReadLatch(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected a zero-TTL latch to never expire")
	}
}

func TestProbeCapAndRelease(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	ok, err := s.TryAcquireProbe(ctx, "k", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected the first probe to be acquired")
	}

	ok, err = s.TryAcquireProbe(ctx, "k", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected the second concurrent probe to be capped")
	}

	if err := s.ReleaseProbe(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.TryAcquireProbe(ctx, "k", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a probe slot to be free after release")
	}
}

func TestProbeSelfHealsAfterTTL(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	ok, err := s.TryAcquireProbe(ctx, "k", 1, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}

	// Simulate a crashed caller that never releases; after the TTL, a new
	// acquire should self-heal rather than stay capped forever.
	clock = base.Add(2 * time.Second)
	ok, err = s.TryAcquireProbe(ctx, "k", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected the probe slot to self-heal after its TTL elapsed")
	}
}

func TestRampReadWriteAndExpiry(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := base
	s := New(func() time.Time { return clock })

	if err := s.SetRamp(ctx, "k", 25, time.Second); err != nil {
		t.Fatal(err)
	}
	percent, present, err := s.ReadRamp(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !present || percent != 25 {
		t.Fatalf("expected ramp=25, got present=%v percent=%d", present, percent)
	}

	clock = base.Add(2 * time.Second)
	_, present, err = s.ReadRamp(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected the ramp entry to have expired")
	}
}

func TestReadWindowUnknownKey(t *testing.T) {
	s := New(nil)
	successes, failures, err := s.ReadWindow(context.Background(), "missing", time.Now(), time.Minute, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if successes != 0 || failures != 0 {
		t.Fatalf("expected zero counts for an unknown key, got %d/%d", successes, failures)
	}
}

var _ breaker.Store = (*Store)(nil)
