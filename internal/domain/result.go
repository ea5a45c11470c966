package domain

import "time"

// BatchResult aggregates the outcome of one batch
type BatchResult struct {
	BatchName  string         `json:"batchName"`
	Query      string         `json:"query"`
	Outcome    BatchOutcome   `json:"outcome"`
	ErrorKind  ErrorKind      `json:"errorKind,omitempty"`
	Error      string         `json:"error,omitempty"`
	DryRun     bool           `json:"dryRun,omitempty"`
	Total      int            `json:"total"`
	Updated    int            `json:"updated"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Outcomes   []IssueOutcome `json:"issues"`
	Warnings   []string       `json:"warnings,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	ResultFile string         `json:"resultFile,omitempty"`
}

// Add counts an issue outcome and appends it to the result
func (r *BatchResult) Add(o IssueOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Total++
	switch o.Action {
	case ActionUpdated:
		r.Updated++
	case ActionFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// Succeeded is true for a completed batch without any failed issue
func (r *BatchResult) Succeeded() bool {
	return r.Outcome == BatchCompleted && r.Failed == 0
}

// FailedOutcomes returns the outcomes recorded as FAILED
func (r *BatchResult) FailedOutcomes() []IssueOutcome {
	var out []IssueOutcome
	for _, o := range r.Outcomes {
		if o.Action == ActionFailed {
			out = append(out, o)
		}
	}
	return out
}

// RunTotals are global counts across all batches of a run
type RunTotals struct {
	Batches            int `json:"batches"`
	CompletedBatches   int `json:"completedBatches"`
	SkippedBatches     int `json:"skippedBatches"`
	FailedBatches      int `json:"failedBatches"`
	InterruptedBatches int `json:"interruptedBatches"`
	Issues             int `json:"issues"`
	Updated            int `json:"updated"`
	Skipped            int `json:"skipped"`
	Failed             int `json:"failed"`
}

// FailureRef points at one failed issue so it can be retried manually
type FailureRef struct {
	Batch     string    `json:"batch"`
	Issue     string    `json:"issue"`
	ErrorKind ErrorKind `json:"errorKind"`
	Error     string    `json:"error,omitempty"`
}

// RunSummary is the ordered list of batch results of a run plus totals
type RunSummary struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	DryRun     bool          `json:"dryRun,omitempty"`
	Force      bool          `json:"force,omitempty"`
	Batches    []BatchResult `json:"batches"`
	Totals     RunTotals     `json:"totals"`
	Failures   []FailureRef  `json:"failures,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// Add appends a batch result and folds it into the totals
func (s *RunSummary) Add(r BatchResult) {
	s.Batches = append(s.Batches, r)
	s.Totals.Batches++
	switch r.Outcome {
	case BatchCompleted:
		s.Totals.CompletedBatches++
	case BatchSkipped:
		s.Totals.SkippedBatches++
	case BatchFailed:
		s.Totals.FailedBatches++
	case BatchInterrupted:
		s.Totals.InterruptedBatches++
	}
	s.Totals.Issues += r.Total
	s.Totals.Updated += r.Updated
	s.Totals.Skipped += r.Skipped
	s.Totals.Failed += r.Failed

	if r.Outcome == BatchFailed {
		s.Failures = append(s.Failures, FailureRef{Batch: r.BatchName, ErrorKind: r.ErrorKind, Error: r.Error})
	}
	for _, o := range r.FailedOutcomes() {
		s.Failures = append(s.Failures, FailureRef{
			Batch:     r.BatchName,
			Issue:     o.Identifier(),
			ErrorKind: o.ErrorKind,
			Error:     o.Error,
		})
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, r.BatchName+": "+w)
	}
}

// HasFailures reports whether any issue or batch failed, or the run was
// interrupted before finishing
func (s *RunSummary) HasFailures() bool {
	return s.Totals.Failed > 0 || s.Totals.FailedBatches > 0 || s.Totals.InterruptedBatches > 0
}
