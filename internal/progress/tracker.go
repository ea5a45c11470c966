package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// DefaultRetryDelay is the pause before the single retry of a failed write
const DefaultRetryDelay = 500 * time.Millisecond

// Tracker owns the in-memory progress record of every active batch and writes
// each change through to the backend before returning
type Tracker struct {
	backend    Backend
	logger     *slog.Logger
	retryDelay time.Duration
	now        func() time.Time
	sleep      func(time.Duration)

	mu      sync.Mutex
	batches map[string]*batchState
}

type batchState struct {
	record     *domain.ProgressRecord
	memoryOnly bool
	warnings   []string
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the tracker's logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithRetryDelay sets the pause before retrying a failed write
func WithRetryDelay(d time.Duration) Option {
	return func(t *Tracker) { t.retryDelay = d }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSleep overrides time.Sleep
func WithSleep(sleep func(time.Duration)) Option {
	return func(t *Tracker) { t.sleep = sleep }
}

// NewTracker creates a tracker writing through to backend
func NewTracker(backend Backend, opts ...Option) *Tracker {
	t := &Tracker{
		backend:    backend,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		sleep:      time.Sleep,
		batches:    make(map[string]*batchState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load returns the latest persisted record for a batch, or nil
func (t *Tracker) Load(ctx context.Context, batchName string) (*domain.ProgressRecord, error) {
	record, err := t.backend.Latest(ctx, batchName)
	if err != nil {
		return nil, fmt.Errorf("loading progress for %q: %w", batchName, err)
	}
	return record, nil
}

// LoadPath reads a record from an explicit location
func (t *Tracker) LoadPath(ctx context.Context, path string) (*domain.ProgressRecord, error) {
	loader, ok := t.backend.(PathLoader)
	if !ok {
		return nil, ErrNotSupported
	}
	record, err := loader.LoadPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading progress file %s: %w", path, err)
	}
	return record, nil
}

// Begin activates a record for the batch. An unfinished prior record is
// continued in place; a finished one seeds a fresh record with its resolved
// entries. A nil prior starts from scratch.
func (t *Tracker) Begin(ctx context.Context, batchName string, prior *domain.ProgressRecord) *domain.ProgressRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A finished record is history; the new run diffs every issue again
	record := domain.NewProgressRecord(batchName, t.now())
	if prior != nil && prior.BatchName == batchName && !prior.Completed {
		record = prior.Clone()
	}

	st := &batchState{record: record}
	t.batches[batchName] = st
	t.persist(ctx, st, "")
	return record.Clone()
}

// Record stores an issue outcome and persists the record before returning.
// Persistent write failures switch the batch to memory-only tracking.
func (t *Tracker) Record(ctx context.Context, batchName string, outcome domain.IssueOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(batchName)
	st.record.Entries[outcome.IssueID] = outcome
	st.record.UpdatedAt = t.now()
	t.persist(ctx, st, outcome.IssueID)
}

// Finalize marks the batch's record completed. Calling it again is a no-op.
func (t *Tracker) Finalize(ctx context.Context, batchName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(batchName)
	if st.record.Completed {
		return
	}
	now := t.now()
	st.record.Completed = true
	st.record.CompletedAt = &now
	st.record.UpdatedAt = now
	t.persist(ctx, st, "")
}

// Snapshot returns a copy of the active record for the batch
func (t *Tracker) Snapshot(batchName string) *domain.ProgressRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.batches[batchName]; ok {
		return st.record.Clone()
	}
	return nil
}

// Warnings returns persistence warnings raised for the batch
func (t *Tracker) Warnings(batchName string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.batches[batchName]; ok {
		return append([]string(nil), st.warnings...)
	}
	return nil
}

// MemoryOnly reports whether the batch stopped persisting
func (t *Tracker) MemoryOnly(batchName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.batches[batchName]
	return ok && st.memoryOnly
}

// state returns the batch state, starting a fresh one if Begin was skipped.
// Caller holds t.mu.
func (t *Tracker) state(batchName string) *batchState {
	st, ok := t.batches[batchName]
	if !ok {
		st = &batchState{record: domain.NewProgressRecord(batchName, t.now())}
		t.batches[batchName] = st
	}
	return st
}

// persist writes the record, retrying once. Caller holds t.mu.
func (t *Tracker) persist(ctx context.Context, st *batchState, issueID string) {
	if st.memoryOnly {
		return
	}

	err := t.write(ctx, st.record, issueID)
	if err == nil {
		return
	}
	t.logger.Warn("progress write failed, retrying",
		"batch", st.record.BatchName,
		"error", err,
	)

	t.sleep(t.retryDelay)
	if err = t.write(ctx, st.record, issueID); err == nil {
		return
	}

	st.memoryOnly = true
	msg := fmt.Sprintf("progress persistence failed, continuing in memory only: %v", err)
	st.warnings = append(st.warnings, msg)
	t.logger.Error("progress persistence disabled for batch",
		"batch", st.record.BatchName,
		"error", err,
	)
}

func (t *Tracker) write(ctx context.Context, record *domain.ProgressRecord, issueID string) error {
	// Persistence must not be skipped because the run is being cancelled
	ctx = context.WithoutCancel(ctx)
	if saver, ok := t.backend.(EntrySaver); ok && issueID != "" {
		return saver.SaveEntry(ctx, record, issueID)
	}
	return t.backend.Save(ctx, record)
}
