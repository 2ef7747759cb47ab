package music

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports an empty or missing query. Callers treat it as an
	// empty result rather than a failure.
	ErrValidation = errors.New("invalid query")

	// ErrAuthRequired reports a request without a usable session.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotFound reports an artist, track or like that does not exist.
	ErrNotFound = errors.New("not found")
)

// UpstreamError wraps a failure of the remote music service, including
// malformed payloads.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err in an *UpstreamError for op. A nil err stays nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err came from the remote service.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
