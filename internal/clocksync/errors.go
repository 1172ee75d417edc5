package clocksync

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")
	ErrNetwork      = errors.New("network failure")
	ErrValidation   = errors.New("validation rejected")
	ErrPermission   = errors.New("permission denied")
	ErrConflict     = errors.New("remote conflict")
	ErrClosed       = errors.New("store closed")
)

// ConflictError reports that the remote already holds a newer version of the
// targeted entity. It carries the authoritative remote record so the
// resolver can merge without a second round trip.
type ConflictError struct {
	Remote RemoteRecord
}

func (e *ConflictError) Error() string {
	return "remote conflict"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// GatewayError is a non-conflict remote failure with its HTTP detail.
// Use errors.Is against ErrNetwork, ErrValidation or ErrPermission to
// classify it; the status code is kept for logging only.
type GatewayError struct {
	StatusCode int
	Code       string
	Message    string
	class      error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %d: %s", e.StatusCode, e.Message)
}

func (e *GatewayError) Is(target error) bool {
	return target == e.class
}

// Retryable reports whether err warrants another attempt after backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// Terminal reports whether err dead-letters the operation immediately.
func Terminal(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrPermission)
}
