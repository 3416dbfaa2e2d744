package breaker

import (
	"fmt"
	"time"
)

// Ramp describes the progressive recovery schedule the engine walks
// through once a breaker closes from HalfOpen.
type Ramp struct {
	// Percentages is the ordered list of primary routing weights (0-100)
	// the engine advances through. Must be non-empty.
	Percentages []int
	// HoldDuration is the TTL of each stored ramp value. EvaluateRamp does
	// not wait for it: it advances one step on the next Report whose window
	// failure rate is within MaxFailureRatePerStep. A ramp value that
	// expires reads as absent, i.e. full routing to the primary.
	HoldDuration time.Duration
	// MaxFailureRatePerStep aborts the ramp (TripOpen) if the window
	// failure rate exceeds this fraction during any step.
	MaxFailureRatePerStep float64
}

// Options is the immutable, validated configuration for one breaker
// instance. Two engines constructed with the same Key against the same
// Store are the same logical breaker.
type Options struct {
	// Key identifies the breaker. All Store keys are derived by prefixing
	// this value; it must be non-empty.
	Key string
	// Window is the sliding observation duration used by EvaluateOpen and
	// EvaluateRamp. Must be greater than Bucket and at most 24h.
	Window time.Duration
	// Bucket is the granularity of time-aligned counters within Window.
	// Must be at least one second.
	Bucket time.Duration
	// MinSamples is the minimum number of observations in Window before
	// Closed→Open can fire.
	MinSamples int
	// FailureRateToOpen is the failure fraction, in [0,1], that trips the
	// breaker from Closed.
	FailureRateToOpen float64
	// OpenCooldown is the dwell time in Open before the engine considers
	// HalfOpen. Must be positive.
	OpenCooldown time.Duration
	// HalfOpenMaxProbes caps concurrent probes cluster-wide while
	// HalfOpen. Must be at least 1.
	HalfOpenMaxProbes int
	// HalfOpenSuccessesToClose is the number of consecutive probe
	// successes required to close from HalfOpen. Must be at least 1.
	HalfOpenSuccessesToClose int
	// Ramp is the progressive recovery schedule applied after closing.
	Ramp Ramp
}

// Validate checks every constraint in the Options table and returns a
// single joined error describing every violation, or nil if Options is
// usable. Validate never panics; construction fails closed via New.
func (o Options) Validate() error {
	var errs []error
	if o.Key == "" {
		errs = append(errs, fmt.Errorf("key: must be non-empty"))
	}
	if o.Bucket < time.Second {
		errs = append(errs, fmt.Errorf("bucket: must be >= 1s, got %s", o.Bucket))
	}
	if o.Window <= o.Bucket {
		errs = append(errs, fmt.Errorf("window: must be > bucket (%s), got %s", o.Bucket, o.Window))
	}
	if o.Window > 24*time.Hour {
		errs = append(errs, fmt.Errorf("window: must be <= 24h, got %s", o.Window))
	}
	if o.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("minSamples: must be >= 1, got %d", o.MinSamples))
	}
	if o.FailureRateToOpen < 0 || o.FailureRateToOpen > 1 {
		errs = append(errs, fmt.Errorf("failureRateToOpen: must be in [0,1], got %v", o.FailureRateToOpen))
	}
	if o.OpenCooldown <= 0 {
		errs = append(errs, fmt.Errorf("openCooldown: must be > 0, got %s", o.OpenCooldown))
	}
	if o.HalfOpenMaxProbes < 1 {
		errs = append(errs, fmt.Errorf("halfOpenMaxProbes: must be >= 1, got %d", o.HalfOpenMaxProbes))
	}
	if o.HalfOpenSuccessesToClose < 1 {
		errs = append(errs, fmt.Errorf("halfOpenSuccessesToClose: must be >= 1, got %d", o.HalfOpenSuccessesToClose))
	}
	if len(o.Ramp.Percentages) == 0 {
		errs = append(errs, fmt.Errorf("ramp.percentages: must be non-empty"))
	}
	for i, p := range o.Ramp.Percentages {
		if p < 0 || p > 100 {
			errs = append(errs, fmt.Errorf("ramp.percentages[%d]: must be in [0,100], got %d", i, p))
		}
	}
	if o.Ramp.HoldDuration <= 0 {
		errs = append(errs, fmt.Errorf("ramp.holdDuration: must be > 0, got %s", o.Ramp.HoldDuration))
	}
	if o.Ramp.MaxFailureRatePerStep < 0 || o.Ramp.MaxFailureRatePerStep > 1 {
		errs = append(errs, fmt.Errorf("ramp.maxFailureRatePerStep: must be in [0,1], got %v", o.Ramp.MaxFailureRatePerStep))
	}
	return newValidationError(errs)
}
