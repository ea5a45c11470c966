// Package executor runs one batch: it resolves the issue set, computes the
// label delta per issue, applies it through the issue store and records
// every outcome with the progress tracker.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/issuestore"
)

const dryRunNote = "dry run: no network call made"

// Config tunes rate limiting, retries and parallelism
type Config struct {
	// MinDelay is the minimum spacing between mutation calls
	MinDelay    time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxRetryAfter is the longest server Retry-After the executor waits
	// out; a longer one fails the issue as RATE_LIMITED
	MaxRetryAfter time.Duration
	// Concurrency > 1 mutates independent issues in parallel, still bound
	// by the shared MinDelay limiter
	Concurrency   int
	CheckEditable bool
}

// DefaultConfig returns conservative settings: one call per second, three
// attempts, sequential processing
func DefaultConfig() Config {
	return Config{
		MinDelay:      time.Second,
		MaxAttempts:   3,
		BackoffBase:   time.Second,
		BackoffMax:    30 * time.Second,
		MaxRetryAfter: defaultMaxRetryAfter,
		Concurrency:   1,
	}
}

const defaultMaxRetryAfter = 5 * time.Minute

// Options are the per-run switches
type Options struct {
	DryRun bool
	Force  bool
}

// ProgressRecorder is the part of the progress tracker the executor drives
type ProgressRecorder interface {
	Begin(ctx context.Context, batchName string, prior *domain.ProgressRecord) *domain.ProgressRecord
	Record(ctx context.Context, batchName string, outcome domain.IssueOutcome)
	Finalize(ctx context.Context, batchName string)
	Warnings(batchName string) []string
}

// Executor runs batches against an issue store
type Executor struct {
	store    issuestore.Store
	progress ProgressRecorder
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithClock overrides time.Now for outcome timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithSleep overrides the backoff wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// New creates an executor. All batches run by it share one rate limiter.
func New(store issuestore.Store, progress ProgressRecorder, cfg Config, opts ...Option) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = defaultMaxRetryAfter
	}

	limit := rate.Inf
	if cfg.MinDelay > 0 {
		limit = rate.Every(cfg.MinDelay)
	}

	e := &Executor{
		store:    store,
		progress: progress,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one batch. Issue-level failures never abort the batch; only
// validation, search failure or cancellation end it early.
func (e *Executor) Run(ctx context.Context, spec domain.BatchSpec, prior *domain.ProgressRecord, opts Options) domain.BatchResult {
	result := domain.BatchResult{
		BatchName: spec.Name,
		Query:     spec.Query,
		DryRun:    opts.DryRun,
		StartedAt: e.now(),
	}
	logger := e.logger.With("batch", spec.Name)

	if spec.IsDone() && !opts.Force {
		logger.Info("batch already done, skipping")
		result.Outcome = domain.BatchSkipped
		result.FinishedAt = e.now()
		return result
	}

	if err := spec.Validate(); err != nil {
		return e.fail(result, domain.ErrValidation, err)
	}

	logger.Info("searching issues", "query", spec.Query)
	issues, err := issuestore.SearchAll(ctx, e.store, spec.Query)
	if err != nil {
		if ctx.Err() != nil {
			return e.interrupt(result, 0, 0)
		}
		return e.fail(result, domain.ErrSearch, err)
	}
	logger.Info("issues found", "count", len(issues))

	if opts.Force || (prior != nil && prior.Completed) {
		prior = nil
	}
	if !opts.DryRun {
		e.progress.Begin(ctx, spec.Name, prior)
	}

	outcomes, done := e.processAll(ctx, spec, issues, prior, opts)
	processed := 0
	for i := range issues {
		if done[i] {
			result.Add(outcomes[i])
			processed++
		}
	}

	if !opts.DryRun {
		result.Warnings = e.progress.Warnings(spec.Name)
	}

	if processed < len(issues) {
		logger.Warn("batch interrupted", "processed", processed, "total", len(issues))
		return e.interrupt(result, processed, len(issues))
	}

	if !opts.DryRun {
		e.progress.Finalize(ctx, spec.Name)
	}
	result.Outcome = domain.BatchCompleted
	result.FinishedAt = e.now()
	logger.Info("batch finished",
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result
}

// processAll handles every issue, in parallel when configured. done[i]
// reports whether issue i produced an outcome before cancellation.
func (e *Executor) processAll(ctx context.Context, spec domain.BatchSpec, issues []domain.IssueRef, prior *domain.ProgressRecord, opts Options) ([]domain.IssueOutcome, []bool) {
	outcomes := make([]domain.IssueOutcome, len(issues))
	done := make([]bool, len(issues))
	add, remove := spec.AddSet(), spec.RemoveSet()

	if e.cfg.Concurrency <= 1 {
		for i, issue := range issues {
			if ctx.Err() != nil {
				break
			}
			outcomes[i], done[i] = e.processIssue(ctx, spec.Name, issue, add, remove, prior, opts)
		}
		return outcomes, done
	}

	// Each goroutine owns index i, so the slices need no locking
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i, issue := range issues {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i], done[i] = e.processIssue(ctx, spec.Name, issue, add, remove, prior, opts)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, done
}

// processIssue returns the outcome for one issue, or false if the run was
// cancelled before the issue was settled
func (e *Executor) processIssue(ctx context.Context, batchName string, issue domain.IssueRef, add, remove domain.LabelSet, prior *domain.ProgressRecord, opts Options) (domain.IssueOutcome, bool) {
	if prior.Resolved(issue.ID) {
		o := prior.Entries[issue.ID]
		o.Resumed = true
		return o, true
	}

	target := domain.TargetLabels(issue.Labels, add, remove)
	delta := domain.Diff(issue.Labels, target)
	o := domain.IssueOutcome{
		IssueID:        issue.ID,
		IssueKey:       issue.Key,
		PreviousLabels: issue.Labels.Sorted(),
		TargetLabels:   target.Sorted(),
		DryRun:         opts.DryRun,
	}
	logger := e.logger.With("batch", batchName, "issue", issue.Identifier())

	if delta.Empty() {
		o.Action = domain.ActionSkippedNoChange
		o.Timestamp = e.now()
		logger.Debug("labels already match")
		e.record(ctx, batchName, o, opts)
		return o, true
	}

	if e.cfg.CheckEditable {
		if checker, ok := e.store.(issuestore.EditabilityChecker); ok {
			editable, err := checker.LabelsEditable(ctx, issue)
			switch {
			case err != nil && ctx.Err() != nil:
				return o, false
			case err != nil:
				o.Action = domain.ActionFailed
				o.ErrorKind = issuestore.KindOf(err)
				o.Error = fmt.Sprintf("checking label editability: %v", err)
				o.Timestamp = e.now()
				logger.Warn("editability check failed", "error", err)
				e.record(ctx, batchName, o, opts)
				return o, true
			case !editable:
				o.Action = domain.ActionSkippedNotEditable
				o.Note = "labels field does not allow add and remove"
				o.Timestamp = e.now()
				logger.Warn("labels not editable, skipping")
				e.record(ctx, batchName, o, opts)
				return o, true
			}
		}
	}

	o.Added = delta.Add
	o.Removed = delta.Remove

	if opts.DryRun {
		o.Action = domain.ActionUpdated
		o.Note = dryRunNote
		o.Timestamp = e.now()
		logger.Info("would update labels", "add", delta.Add, "remove", delta.Remove)
		return o, true
	}

	attempts, interrupted, err := e.mutate(ctx, logger, issue, delta)
	if interrupted {
		return o, false
	}
	o.Attempts = attempts
	o.Timestamp = e.now()
	if err != nil {
		o.Action = domain.ActionFailed
		o.ErrorKind = issuestore.KindOf(err)
		o.Error = err.Error()
		logger.Error("label update failed", "kind", o.ErrorKind, "attempts", attempts, "error", err)
	} else {
		o.Action = domain.ActionUpdated
		logger.Info("labels updated", "add", delta.Add, "remove", delta.Remove)
	}
	e.record(ctx, batchName, o, opts)
	return o, true
}

func (e *Executor) record(ctx context.Context, batchName string, o domain.IssueOutcome, opts Options) {
	if opts.DryRun {
		return
	}
	e.progress.Record(ctx, batchName, o)
}

func (e *Executor) fail(result domain.BatchResult, kind domain.ErrorKind, err error) domain.BatchResult {
	e.logger.Error("batch failed", "batch", result.BatchName, "kind", kind, "error", err)
	result.Outcome = domain.BatchFailed
	result.ErrorKind = kind
	result.Error = err.Error()
	result.FinishedAt = e.now()
	return result
}

func (e *Executor) interrupt(result domain.BatchResult, processed, total int) domain.BatchResult {
	result.Outcome = domain.BatchInterrupted
	result.ErrorKind = domain.ErrInterrupted
	result.Error = fmt.Sprintf("interrupted after %d of %d issues", processed, total)
	result.FinishedAt = e.now()
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
