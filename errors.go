package docquiz

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions callers branch on. Use errors.Is.
var (
	// ErrUnauthorized means no authenticated user was supplied.
	ErrUnauthorized = errors.New("unauthorized: no authenticated user")

	// ErrNotFound means the requested quiz, document or chunk set does
	// not exist (or is not visible to the requesting user).
	ErrNotFound = errors.New("not found")
)

// ValidationError reports malformed caller input: an empty document
// set, zero answers, a config that breaks its own invariants. Never
// retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError reports a failure from an external backend (embedding
// or text generation). The pipeline makes a single attempt; retrying is
// the caller's responsibility.
type UpstreamError struct {
	Backend string // "embedding" or "generation"
	Msg     string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s backend: %s", e.Backend, e.Msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
