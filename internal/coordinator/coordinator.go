// Package coordinator runs a selection of batches in input order and
// aggregates their results into one run summary.
package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/executor"
	"github.com/hochfrequenz/label-bulk/internal/notify"
)

// BatchRunner executes one batch
type BatchRunner interface {
	Run(ctx context.Context, spec domain.BatchSpec, prior *domain.ProgressRecord, opts executor.Options) domain.BatchResult
}

// ProgressLoader finds the prior progress of a batch
type ProgressLoader interface {
	Load(ctx context.Context, batchName string) (*domain.ProgressRecord, error)
	LoadPath(ctx context.Context, path string) (*domain.ProgressRecord, error)
}

// StatusWriter persists the DONE status of batches in the input file
type StatusWriter interface {
	MarkDone(names []string) error
}

// Reporter writes per-batch result files and the final summary
type Reporter interface {
	WriteBatch(result *domain.BatchResult) error
	WriteSummary(summary *domain.RunSummary) (string, error)
}

// Deps are the collaborators of a Coordinator. Status, Reporter, Notifier
// and Logger are optional.
type Deps struct {
	Runner   BatchRunner
	Progress ProgressLoader
	Status   StatusWriter
	Reporter Reporter
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Options are the run-wide switches
type Options struct {
	DryRun bool
	Force  bool
	// Selection limits the run to these batch names
	Selection []string
	// ResumeFile loads prior progress from an explicit file; requires
	// exactly one selected batch
	ResumeFile string
}

// Coordinator drives a run over many batches
type Coordinator struct {
	deps  Deps
	now   func() time.Time
	newID func() string
}

// New creates a coordinator
func New(deps Deps) *Coordinator {
	if deps.Notifier == nil {
		deps.Notifier = notify.NoopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// ParseSelection splits a comma-separated list of batch names
func ParseSelection(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Select returns the batches to run, in input order. Unknown names are an
// error; DONE batches are dropped unless force is set.
func Select(batches []domain.BatchSpec, names []string, force bool) ([]domain.BatchSpec, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	if len(wanted) > 0 {
		known := make(map[string]bool, len(batches))
		for _, b := range batches {
			known[b.Name] = true
		}
		var unknown []string
		for _, n := range names {
			if !known[n] {
				unknown = append(unknown, n)
			}
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown batch names: %s", strings.Join(unknown, ", "))
		}
	}

	var selected []domain.BatchSpec
	for _, b := range batches {
		if len(wanted) > 0 && !wanted[b.Name] {
			continue
		}
		if b.IsDone() && !force {
			continue
		}
		selected = append(selected, b)
	}
	return selected, nil
}

// Run processes the selected batches one after another. A failing batch does
// not stop later ones; cancellation does. The summary is written and the
// notification sent once, after the last batch.
func (c *Coordinator) Run(ctx context.Context, batches []domain.BatchSpec, opts Options) (*domain.RunSummary, error) {
	selected, err := Select(batches, opts.Selection, opts.Force)
	if err != nil {
		return nil, err
	}
	if opts.ResumeFile != "" && len(selected) != 1 {
		return nil, fmt.Errorf("a resume file requires exactly one selected batch, got %d", len(selected))
	}

	logger := c.deps.Logger
	summary := &domain.RunSummary{
		RunID:     c.newID(),
		StartedAt: c.now(),
		DryRun:    opts.DryRun,
		Force:     opts.Force,
	}
	logger.Info("run started",
		"run_id", summary.RunID,
		"batches", len(selected),
		"skipped_done", len(batches)-len(selected),
		"dry_run", opts.DryRun,
		"force", opts.Force,
	)

	var runWarnings []string
	for i, spec := range selected {
		if ctx.Err() != nil {
			logger.Warn("run cancelled, remaining batches not started", "remaining", len(selected)-i)
			break
		}

		prior, err := c.loadPrior(ctx, spec.Name, opts)
		if err != nil {
			logger.Warn("could not load prior progress, starting fresh", "batch", spec.Name, "error", err)
			runWarnings = append(runWarnings, fmt.Sprintf("%s: prior progress unreadable: %v", spec.Name, err))
			prior = nil
		}

		result := c.deps.Runner.Run(ctx, spec, prior, executor.Options{DryRun: opts.DryRun, Force: opts.Force})
		if c.deps.Reporter != nil {
			if err := c.deps.Reporter.WriteBatch(&result); err != nil {
				logger.Error("writing batch results failed", "batch", spec.Name, "error", err)
				result.Warnings = append(result.Warnings, err.Error())
			}
		}
		summary.Add(result)

		if result.Outcome == domain.BatchInterrupted {
			break
		}
	}

	if !opts.DryRun {
		if err := c.markDone(summary); err != nil {
			logger.Error("updating batch status failed", "error", err)
			runWarnings = append(runWarnings, fmt.Sprintf("updating batch status: %v", err))
		}
	}

	summary.Warnings = append(summary.Warnings, runWarnings...)
	summary.FinishedAt = c.now()

	if c.deps.Reporter != nil {
		path, err := c.deps.Reporter.WriteSummary(summary)
		if err != nil {
			logger.Error("writing run summary failed", "error", err)
		} else {
			logger.Info("run summary written", "path", path)
		}
	}
	if err := c.deps.Notifier.Send(notify.FromSummary(summary)); err != nil {
		logger.Warn("sending notification failed", "error", err)
	}

	logger.Info("run finished",
		"run_id", summary.RunID,
		"updated", summary.Totals.Updated,
		"skipped", summary.Totals.Skipped,
		"failed", summary.Totals.Failed,
	)
	return summary, nil
}

func (c *Coordinator) loadPrior(ctx context.Context, batchName string, opts Options) (*domain.ProgressRecord, error) {
	if opts.Force || c.deps.Progress == nil {
		return nil, nil
	}
	if opts.ResumeFile != "" {
		record, err := c.deps.Progress.LoadPath(ctx, opts.ResumeFile)
		if err != nil {
			return nil, err
		}
		if record.BatchName != batchName {
			return nil, fmt.Errorf("resume file belongs to batch %q", record.BatchName)
		}
		return record, nil
	}
	return c.deps.Progress.Load(ctx, batchName)
}

// markDone flips every fully successful batch to DONE in the input file
func (c *Coordinator) markDone(summary *domain.RunSummary) error {
	if c.deps.Status == nil {
		return nil
	}
	var names []string
	for _, r := range summary.Batches {
		if r.Succeeded() {
			names = append(names, r.BatchName)
		}
	}
	if len(names) == 0 {
		return nil
	}
	if err := c.deps.Status.MarkDone(names); err != nil {
		return err
	}
	c.deps.Logger.Info("batches marked done", "batches", names)
	return nil
}
