package music

import (
	"errors"
	"fmt"
	"testing"
)

// TestUpstreamWrapping verifies the upstream error survives further wrapping
// and still exposes the original cause.
func TestUpstreamWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("search page: %w", Upstream("search", cause))
	if !IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
	if err.Error() != "search page: upstream search: connection refused" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestUpstreamNil(t *testing.T) {
	if Upstream("search", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
	if IsUpstream(ErrValidation) {
		t.Fatal("validation error is not upstream")
	}
}
