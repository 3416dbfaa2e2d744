package breaker

import (
	"testing"
	"time"
)

func validOptions() Options {
	return Options{
		Key:                      "t",
		Window:                   60 * time.Second,
		Bucket:                   10 * time.Second,
		MinSamples:               1,
		FailureRateToOpen:        0.5,
		OpenCooldown:             time.Second,
		HalfOpenMaxProbes:        1,
		HalfOpenSuccessesToClose: 1,
		Ramp: Ramp{
			Percentages:           []int{100},
			HoldDuration:          time.Second,
			MaxFailureRatePerStep: 1.0,
		},
	}
}

func TestOptionsValidate_OK(t *testing.T) {
	if err := validOptions().Validate(); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}
}

func TestOptionsValidate_EmptyKey(t *testing.T) {
	o := validOptions()
	o.Key = ""
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestOptionsValidate_WindowNotGreaterThanBucket(t *testing.T) {
	o := validOptions()
	o.Window = o.Bucket
	if err := o.Validate(); err == nil {
		t.Fatal("expected error when window <= bucket")
	}
}

func TestOptionsValidate_WindowTooLong(t *testing.T) {
	o := validOptions()
	o.Window = 25 * time.Hour
	o.Bucket = time.Second
	if err := o.Validate(); err == nil {
		t.Fatal("expected error when window exceeds 24h")
	}
}

func TestOptionsValidate_BucketTooSmall(t *testing.T) {
	o := validOptions()
	o.Bucket = 500 * time.Millisecond
	if err := o.Validate(); err == nil {
		t.Fatal("expected error when bucket < 1s")
	}
}

func TestOptionsValidate_FailureRateOutOfRange(t *testing.T) {
	o := validOptions()
	o.FailureRateToOpen = 1.5
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for failureRateToOpen > 1")
	}
}

func TestOptionsValidate_EmptyRamp(t *testing.T) {
	o := validOptions()
	o.Ramp.Percentages = nil
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for empty ramp percentages")
	}
}

func TestOptionsValidate_RampPercentOutOfRange(t *testing.T) {
	o := validOptions()
	o.Ramp.Percentages = []int{50, 150}
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for ramp percentage > 100")
	}
}

func TestOptionsValidate_CollectsMultipleErrors(t *testing.T) {
	o := Options{}
	err := o.Validate()
	if err == nil {
		t.Fatal("expected error for zero-value options")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Unwrap()) < 5 {
		t.Fatalf("expected multiple collected errors, got %d", len(ve.Unwrap()))
	}
}
