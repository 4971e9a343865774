package service

import (
	"errors"
	"fmt"

	"crimepatrol/internal/repository"
)

// Error codes carried by emergency-error acks
const (
	CodeValidation       = "validation_failed"
	CodeNotFound         = "session_not_found"
	CodeResolved         = "session_resolved"
	CodeStalePing        = "stale_ping"
	CodeAlreadyResponded = "already_responded"
	CodeStoreUnavailable = "store_unavailable"
	CodeRateLimited      = "rate_limited"
	CodeInvalidFormat    = "invalid_format"
	CodeUnknownEvent     = "unknown_event"
)

// ValidationError is a rejected inbound payload. Nothing is written or broadcast.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError is a failed persistence call; Err is the repository error
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "required"}
}

// ErrorCode maps an error to the code sent back to the originating client
func ErrorCode(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.Is(err, repository.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, repository.ErrSessionResolved):
		return CodeResolved
	case errors.Is(err, repository.ErrStalePing):
		return CodeStalePing
	case errors.Is(err, repository.ErrAlreadyResponded):
		return CodeAlreadyResponded
	}
	return CodeStoreUnavailable
}
