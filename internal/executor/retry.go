package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/issuestore"
)

// retryState is a step of the mutation retry machine:
// attempt -> (succeeded | wait -> attempt | failed)
type retryState int

const (
	stateAttempt retryState = iota
	stateWait
	stateSucceeded
	stateFailed
)

// mutate applies delta to one issue, retrying retriable failures. It
// reports interrupted when ctx ends before a call could be made or during a
// backoff wait; a call already in flight is allowed to finish.
func (e *Executor) mutate(ctx context.Context, logger *slog.Logger, issue domain.IssueRef, delta domain.LabelDelta) (attempts int, interrupted bool, err error) {
	state := stateAttempt
	var wait time.Duration

	for {
		switch state {
		case stateAttempt:
			if werr := e.limiter.Wait(ctx); werr != nil {
				return attempts, true, werr
			}
			attempts++
			err = e.store.MutateLabels(context.WithoutCancel(ctx), issue, delta.Add, delta.Remove)
			switch {
			case err == nil:
				state = stateSucceeded
			case attempts >= e.attemptLimit(err):
				state = stateFailed
			case issuestore.RetryAfterOf(err) > e.cfg.MaxRetryAfter:
				logger.Warn("server asked to wait longer than allowed, giving up",
					"retry_after", issuestore.RetryAfterOf(err),
					"max_retry_after", e.cfg.MaxRetryAfter,
				)
				state = stateFailed
			default:
				wait = e.backoff(attempts, err)
				state = stateWait
			}

		case stateWait:
			logger.Warn("label update failed, retrying",
				"kind", issuestore.KindOf(err),
				"attempt", attempts,
				"wait", wait,
				"error", err,
			)
			if serr := e.sleep(ctx, wait); serr != nil {
				return attempts, true, serr
			}
			state = stateAttempt

		case stateSucceeded:
			return attempts, false, nil

		case stateFailed:
			return attempts, false, err
		}
	}
}

// attemptLimit is the total number of calls allowed for a failure kind.
// OTHER gets a single retry; permission and not-found errors none.
func (e *Executor) attemptLimit(err error) int {
	switch {
	case !issuestore.IsRetriable(err):
		return 1
	case issuestore.KindOf(err) == domain.ErrOther:
		return min(2, e.cfg.MaxAttempts)
	default:
		return e.cfg.MaxAttempts
	}
}

// backoff returns the wait after the given attempt: base doubled per
// attempt, capped at BackoffMax, but never shorter than a server Retry-After.
// The Retry-After itself is bounded by MaxRetryAfter.
func (e *Executor) backoff(attempt int, err error) time.Duration {
	d := e.cfg.BackoffBase
	for i := 1; i < attempt && d < e.cfg.BackoffMax; i++ {
		d *= 2
	}
	if e.cfg.BackoffMax > 0 && d > e.cfg.BackoffMax {
		d = e.cfg.BackoffMax
	}
	if ra := min(issuestore.RetryAfterOf(err), e.cfg.MaxRetryAfter); ra > d {
		d = ra
	}
	return d
}
