// Package breaker implements a distributed circuit breaker: a Closed /
// Open / HalfOpen state machine whose authoritative state lives in a
// shared Store (typically Redis) so every process observing the same
// breaker Key reaches the same routing decision within a bounded
// synchronization lag.
//
// # State machine
//
//	Closed ──(window failure rate ≥ threshold)──► Open ──(cooldown elapses)──► HalfOpen
//	  ▲                                                                              │
//	  └──────────────(N consecutive probe successes)───────────────────────────────┘
//	                  (any probe failure) ────────────────────────────────────► Open
//
// # Local cache vs. authoritative latch
//
// Engine keeps a small in-process cache of the last observed State for a
// branch-free fast path, but the Store's latch is always authoritative:
// every Decide re-reads it and adopts whatever it finds. Divergence
// between the cache and the latch is bounded by a single Decide call.
//
// # Concurrency
//
// Decide and Report are safe for concurrent use. The local State is an
// atomic word; probeSuccessStreak is an atomic counter; no lock is ever
// held across a Store call. See scheduleHalfOpen and Engine.Close for how
// the deferred Open→HalfOpen transition is scheduled and torn down.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// EndpointChoice is the result of a Decide call: which endpoint to use,
// whether the call is a HalfOpen probe, and (while Closed) the ramp weight
// that was in effect when the decision was made.
type EndpointChoice struct {
	Endpoint             string
	UseProbe             bool
	PrimaryWeightPercent int
}

// Engine is one breaker instance. Construct with New; every Engine sharing
// the same Options.Key against the same Store is the same logical breaker.
type Engine struct {
	opts   Options
	store  Store
	clock  Clock
	sink   Sink
	logger *slog.Logger

	state              atomic.Int32 // State
	probeSuccessStreak atomic.Int64

	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
	wg              sync.WaitGroup

	pendingMu     sync.Mutex
	pendingCancel context.CancelFunc

	closed atomic.Bool
}

// New constructs an Engine. Options are validated up front; an invalid
// Options never reaches the engine at runtime.
func New(opts Options, store Store, clock Clock, logger *slog.Logger, sink Sink) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("breaker: store must not be nil")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NoopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:            opts,
		store:           store,
		clock:           clock,
		sink:            sink,
		logger:          logger.With("breaker_key", opts.Key),
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
	}, nil
}

// Close cancels the deferred Open→HalfOpen transition task, if any, and
// waits for it to exit. Close is idempotent and safe to call more than
// once.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.lifecycleCancel()
	e.wg.Wait()
	return nil
}

// State returns the engine's locally cached state. It is eventually
// consistent with the Store latch: the next Decide reconciles it.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setLocalState(s State) {
	e.state.Store(int32(s))
}

// Decide chooses an endpoint for one protected call. Any Store error
// encountered is fatal to the decision and is returned wrapped in a
// *StoreError because no safe default exists without knowing the
// authoritative state.
func (e *Engine) Decide(ctx context.Context, primary, secondary string) (EndpointChoice, error) {
	e.sink.IncRequests(e.opts.Key)
	ctx, end := e.sink.StartSpan(ctx, "choose", e.opts.Key)
	var choice EndpointChoice
	err := e.decide(ctx, primary, secondary, &choice)
	end(err)
	return choice, err
}

func (e *Engine) decide(ctx context.Context, primary, secondary string, out *EndpointChoice) error {
	latch, present, err := e.store.ReadLatch(ctx, e.opts.Key)
	if err != nil {
		return storeErr("ReadLatch", err)
	}
	if present && latch != e.State() {
		e.setLocalState(latch)
	}

	switch e.State() {
	case StateOpen:
		*out = EndpointChoice{Endpoint: secondary, UseProbe: false, PrimaryWeightPercent: 0}
		return nil

	case StateHalfOpen:
		ok, err := e.store.TryAcquireProbe(ctx, e.opts.Key, e.opts.HalfOpenMaxProbes, e.opts.OpenCooldown)
		if err != nil {
			return storeErr("TryAcquireProbe", err)
		}
		if ok {
			*out = EndpointChoice{Endpoint: primary, UseProbe: true, PrimaryWeightPercent: 0}
		} else {
			*out = EndpointChoice{Endpoint: secondary, UseProbe: false, PrimaryWeightPercent: 0}
		}
		return nil

	default: // StateClosed
		percent, present, err := e.store.ReadRamp(ctx, e.opts.Key)
		if err != nil {
			return storeErr("ReadRamp", err)
		}
		if !present || percent >= 100 {
			*out = EndpointChoice{Endpoint: primary, UseProbe: false, PrimaryWeightPercent: 100}
			return nil
		}
		r := rand.IntN(100)
		if r < percent {
			*out = EndpointChoice{Endpoint: primary, UseProbe: false, PrimaryWeightPercent: percent}
		} else {
			*out = EndpointChoice{Endpoint: secondary, UseProbe: false, PrimaryWeightPercent: percent}
		}
		return nil
	}
}

// Report records the outcome of a call previously dispatched via Decide.
// The mandatory Record write is the only Store error Report propagates;
// every subsequent cleanup/state write logs and swallows its error so a
// probe-release failure never leaks into the caller.
func (e *Engine) Report(ctx context.Context, success, wasProbe bool) error {
	ctx, end := e.sink.StartSpan(ctx, "report", e.opts.Key)
	err := e.report(ctx, success, wasProbe)
	end(err)
	return err
}

func (e *Engine) report(ctx context.Context, success, wasProbe bool) error {
	now := e.clock.Now()
	if err := e.store.Record(ctx, e.opts.Key, success, now, e.opts.Window, e.opts.Bucket); err != nil {
		return storeErr("Record", err)
	}
	if success {
		e.sink.IncSuccesses(e.opts.Key)
	} else {
		e.sink.IncFailures(e.opts.Key)
	}

	state := e.State()
	if wasProbe && state != StateHalfOpen {
		e.logger.Warn("report claims a probe outside HalfOpen, treating as non-probe", "err", ErrProbeNotAcquired, "state", state)
	}

	switch state {
	case StateClosed:
		e.evaluateOpen(ctx)
		e.evaluateRamp(ctx)

	case StateHalfOpen:
		if !wasProbe {
			// Non-probe report while HalfOpen: recorded above, no state change.
			return nil
		}
		if err := e.store.ReleaseProbe(ctx, e.opts.Key); err != nil {
			e.logger.Warn("release probe failed", "err", err)
		}
		if success {
			streak := e.probeSuccessStreak.Add(1)
			if streak >= int64(e.opts.HalfOpenSuccessesToClose) {
				e.probeSuccessStreak.Store(0)
				e.setLocalState(StateClosed)
				if err := e.store.SetLatch(ctx, e.opts.Key, StateClosed, 0); err != nil {
					e.logger.Warn("set latch closed failed", "err", err)
				}
				if len(e.opts.Ramp.Percentages) > 0 {
					if err := e.store.SetRamp(ctx, e.opts.Key, e.opts.Ramp.Percentages[0], e.opts.Ramp.HoldDuration); err != nil {
						e.logger.Warn("set initial ramp failed", "err", err)
					}
				}
			}
		} else {
			e.probeSuccessStreak.Store(0)
			e.tripOpen(ctx)
		}

	default: // StateOpen
		// Continuous accounting by design: recorded above, no state change.
	}
	return nil
}

// evaluateOpen trips the breaker if the window failure rate has crossed
// the threshold. Store errors are logged and swallowed.
func (e *Engine) evaluateOpen(ctx context.Context) {
	successes, failures, err := e.store.ReadWindow(ctx, e.opts.Key, e.clock.Now(), e.opts.Window, e.opts.Bucket)
	if err != nil {
		e.logger.Warn("read window failed during evaluateOpen", "err", err)
		return
	}
	n := successes + failures
	if n >= int64(e.opts.MinSamples) && float64(failures)/float64(n) >= e.opts.FailureRateToOpen {
		e.tripOpen(ctx)
	}
}

// evaluateRamp advances, aborts, or completes the active ramp step. Store
// errors are logged and swallowed.
func (e *Engine) evaluateRamp(ctx context.Context) {
	percent, present, err := e.store.ReadRamp(ctx, e.opts.Key)
	if err != nil {
		e.logger.Warn("read ramp failed during evaluateRamp", "err", err)
		return
	}
	if !present || percent >= 100 {
		return
	}
	successes, failures, err := e.store.ReadWindow(ctx, e.opts.Key, e.clock.Now(), e.opts.Window, e.opts.Bucket)
	if err != nil {
		e.logger.Warn("read window failed during evaluateRamp", "err", err)
		return
	}
	total := successes + failures
	var rate float64
	if total > 0 {
		rate = float64(failures) / float64(total)
	}
	if rate > e.opts.Ramp.MaxFailureRatePerStep {
		e.tripOpen(ctx)
		return
	}

	next := 100
	for i, p := range e.opts.Ramp.Percentages {
		if p == percent && i < len(e.opts.Ramp.Percentages)-1 {
			next = e.opts.Ramp.Percentages[i+1]
			break
		}
	}
	if err := e.store.SetRamp(ctx, e.opts.Key, next, e.opts.Ramp.HoldDuration); err != nil {
		e.logger.Warn("advance ramp failed", "err", err)
	}
}

// tripOpen sets local and latched state to Open, zeroes the ramp and
// probe streak, and schedules the deferred Open→HalfOpen transition. It is
// idempotent: calling it while already scheduling a transition cancels the
// stale timer and starts a fresh one against the new cooldown.
func (e *Engine) tripOpen(ctx context.Context) {
	e.setLocalState(StateOpen)
	e.probeSuccessStreak.Store(0)
	if err := e.store.SetLatch(ctx, e.opts.Key, StateOpen, e.opts.OpenCooldown); err != nil {
		e.logger.Warn("set latch open failed", "err", err)
	}
	if err := e.store.SetRamp(ctx, e.opts.Key, 0, e.opts.Ramp.HoldDuration); err != nil {
		e.logger.Warn("reset ramp failed", "err", err)
	}
	e.scheduleHalfOpen()
}

// scheduleHalfOpen (re)starts the cancellable background timer that moves
// the engine from Open to HalfOpen once OpenCooldown elapses.
func (e *Engine) scheduleHalfOpen() {
	e.pendingMu.Lock()
	if e.pendingCancel != nil {
		e.pendingCancel()
	}
	tctx, cancel := context.WithCancel(e.lifecycleCtx)
	e.pendingCancel = cancel
	e.pendingMu.Unlock()

	e.wg.Add(1)
	go e.awaitCooldown(tctx)
}

func (e *Engine) awaitCooldown(ctx context.Context) {
	defer e.wg.Done()
	timer := time.NewTimer(e.opts.OpenCooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	e.setLocalState(StateHalfOpen)
	if err := e.store.SetLatch(context.Background(), e.opts.Key, StateHalfOpen, e.opts.OpenCooldown); err != nil {
		e.logger.Warn("set latch half-open failed", "err", err)
	}
}
