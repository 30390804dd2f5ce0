package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfOperational(t *testing.T) {
	err := NewOperational(CodeTimeout, "call timed out after %ds", 30)
	if got := CodeOf(err); got != CodeTimeout {
		t.Fatalf("CodeOf = %q, want %q", got, CodeTimeout)
	}
	if !IsOperational(err) {
		t.Fatal("expected IsOperational")
	}
	if IsBug(err) {
		t.Fatal("operational error classified as bug")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := NewBug(CodeSequenceConflict, "concurrent writer")
	wrapped := fmt.Errorf("router: step %q: %w", "s1", inner)

	if !IsBug(wrapped) {
		t.Fatal("expected IsBug through wrapping")
	}
	if got := CodeOf(wrapped); got != CodeSequenceConflict {
		t.Fatalf("CodeOf = %q, want %q", got, CodeSequenceConflict)
	}
}

func TestCodeOfUnclassified(t *testing.T) {
	if got := CodeOf(errors.New("something odd")); got != CodeUnknown {
		t.Fatalf("CodeOf = %q, want %q", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestDetailsRoundTrip(t *testing.T) {
	err := NewOperational(CodeCapabilityMissing, "no apply").
		WithDetails(map[string]any{"required_capability": "apply"})

	details := DetailsOf(fmt.Errorf("wrap: %w", err))
	if details == nil || details["required_capability"] != "apply" {
		t.Fatalf("details lost through wrapping: %v", details)
	}
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewBug(CodeBug, "append failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
}
