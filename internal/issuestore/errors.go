package issuestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// MutationError is a typed failure from a tracker call
type MutationError struct {
	Kind       domain.ErrorKind
	StatusCode int
	Message    string
	// RetryAfter is the server-requested wait for RATE_LIMITED errors
	RetryAfter time.Duration
	Err        error
}

func (e *MutationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that are not a *MutationError count as
// TRANSIENT if they are context deadlines, OTHER otherwise.
func KindOf(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	var me *MutationError
	if errors.As(err, &me) {
		return me.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTransient
	}
	return domain.ErrOther
}

// RetryAfterOf returns the server-requested wait carried by err, if any
func RetryAfterOf(err error) time.Duration {
	var me *MutationError
	if errors.As(err, &me) {
		return me.RetryAfter
	}
	return 0
}

// KindForStatus maps an HTTP status code to an error kind
func KindForStatus(status int) domain.ErrorKind {
	switch {
	case status == 429:
		return domain.ErrRateLimited
	case status == 401 || status == 403:
		return domain.ErrPermissionDenied
	case status == 404:
		return domain.ErrNotFound
	case status == 408 || status >= 500:
		return domain.ErrTransient
	default:
		return domain.ErrOther
	}
}

// IsRetriable reports whether a failure of this kind may succeed on retry
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case domain.ErrRateLimited, domain.ErrTransient, domain.ErrOther:
		return true
	default:
		return false
	}
}
