package coach

import (
	"errors"
	"fmt"

	"github.com/compas-coach/compas/internal/ledger"
)

var (
	// ErrEmptyInput is returned for blank chat messages and blank fact text.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidOutcome is returned for feedback outcomes outside success, neutral and fail.
	ErrInvalidOutcome = ledger.ErrInvalidOutcome
	// ErrMissingField is returned when feedback has no suggestion id.
	ErrMissingField = ledger.ErrMissingField
	// ErrModelUnavailable marks a failed or timed-out model call.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrQuotaExceeded is the ErrModelUnavailable subtype for rate, billing
	// and local spend limits.
	ErrQuotaExceeded = fmt.Errorf("%w: quota exceeded", ErrModelUnavailable)
	// ErrStorageUnavailable marks an unreadable fact, profile or ledger store.
	// Reads degrade to empty defaults instead of surfacing it.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUnknownCommand is returned for memory commands other than add, list and delete.
	ErrUnknownCommand = errors.New("unknown memory command")
)

// ModelError describes why a turn got the placeholder reply.
type ModelError struct {
	Quota   bool
	Timeout bool
	Err     error
}

func (e *ModelError) Error() string {
	kind := ErrModelUnavailable
	if e.Quota {
		kind = ErrQuotaExceeded
	}
	if e.Err == nil {
		return kind.Error()
	}
	return fmt.Sprintf("%s: %v", kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Is matches ErrModelUnavailable always and ErrQuotaExceeded for quota failures.
func (e *ModelError) Is(target error) bool {
	switch target {
	case ErrModelUnavailable:
		return true
	case ErrQuotaExceeded:
		return e.Quota
	}
	return false
}

// Kind is the short machine-readable label sent to HTTP clients.
func (e *ModelError) Kind() string {
	switch {
	case e.Quota:
		return "quota_exceeded"
	case e.Timeout:
		return "timeout"
	default:
		return "model_unavailable"
	}
}

func storageError(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, what, err)
}
