package quotabreaker

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/distcb/breaker/memstore"
)

func TestAllow_WithinLimitUsesPrimary(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	b := New(Config{Key: "k", Limit: 3, Period: time.Minute}, store, nil)

	for i := 0; i < 3; i++ {
		endpoint, err := b.Allow(ctx, "P", "S")
		if err != nil {
			t.Fatal(err)
		}
		if endpoint != "P" {
			t.Fatalf("call %d: expected primary within limit, got %q", i, endpoint)
		}
	}
}

func TestAllow_ExceedingLimitDivertsToSecondary(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	b := New(Config{Key: "k", Limit: 2, Period: time.Minute}, store, nil)

	var last string
	for i := 0; i < 4; i++ {
		endpoint, err := b.Allow(ctx, "P", "S")
		if err != nil {
			t.Fatal(err)
		}
		last = endpoint
	}
	if last != "S" {
		t.Fatalf("expected the 4th call over a limit of 2 to divert to secondary, got %q", last)
	}
}

func TestAllow_ResetsOnNextPeriod(t *testing.T) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	clock := fakeClock{t: base}
	store := memstore.New(clock.Now)
	b := New(Config{Key: "k", Limit: 1, Period: time.Second}, store, &clock)

	if endpoint, err := b.Allow(ctx, "P", "S"); err != nil || endpoint != "P" {
		t.Fatalf("first call: endpoint=%q err=%v", endpoint, err)
	}
	if endpoint, err := b.Allow(ctx, "P", "S"); err != nil || endpoint != "S" {
		t.Fatalf("second call within period: expected secondary, got endpoint=%q err=%v", endpoint, err)
	}

	clock.t = clock.t.Add(2 * time.Second)
	if endpoint, err := b.Allow(ctx, "P", "S"); err != nil || endpoint != "P" {
		t.Fatalf("call in next period: expected primary, got endpoint=%q err=%v", endpoint, err)
	}
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }
