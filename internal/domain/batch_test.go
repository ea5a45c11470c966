package domain

import (
	"errors"
	"testing"
)

func TestParseBatchStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   BatchStatus
		wantOK bool
	}{
		{"TO DO", BatchTodo, true},
		{"TODO", BatchTodo, true},
		{"DONE", BatchDone, true},
		{"done", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseBatchStatus(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseBatchStatus(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestBatchSpec_Validate(t *testing.T) {
	spec := BatchSpec{Name: "relabel", Query: "project = X", Add: []string{"new"}, Status: BatchTodo}
	if err := spec.Validate(); err != nil {
		t.Errorf("Valid spec should not error: %v", err)
	}

	noName := spec
	noName.Name = " "
	if err := noName.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	noQuery := spec
	noQuery.Query = ""
	if err := noQuery.Validate(); err == nil {
		t.Error("Empty query should error")
	}

	badStatus := spec
	badStatus.Status = "WIP"
	if err := badStatus.Validate(); err == nil {
		t.Error("Unknown status should error")
	}

	rejected := spec
	rejected.Invalid = errors.New(`add: label "needs review" contains spaces`)
	if err := rejected.Validate(); !errors.Is(err, rejected.Invalid) {
		t.Errorf("Validate() = %v, want wrapped Invalid", err)
	}
}

func TestIssueOutcome_Resolved(t *testing.T) {
	tests := []struct {
		outcome IssueOutcome
		want    bool
	}{
		{IssueOutcome{Action: ActionUpdated}, true},
		{IssueOutcome{Action: ActionUpdated, DryRun: true}, false},
		{IssueOutcome{Action: ActionSkippedNoChange}, true},
		{IssueOutcome{Action: ActionSkippedNotEditable}, false},
		{IssueOutcome{Action: ActionFailed}, false},
	}
	for _, tt := range tests {
		if got := tt.outcome.Resolved(); got != tt.want {
			t.Errorf("Resolved() for %+v = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestRunSummary_Add(t *testing.T) {
	var s RunSummary

	ok := BatchResult{BatchName: "a", Outcome: BatchCompleted}
	ok.Add(IssueOutcome{IssueID: "1", Action: ActionUpdated})
	ok.Add(IssueOutcome{IssueID: "2", Action: ActionSkippedNoChange})
	s.Add(ok)

	if s.HasFailures() {
		t.Error("summary without failures should not report failures")
	}

	partial := BatchResult{BatchName: "b", Outcome: BatchCompleted}
	partial.Add(IssueOutcome{IssueID: "3", IssueKey: "PRJ-3", Action: ActionFailed, ErrorKind: ErrNotFound})
	s.Add(partial)
	s.Add(BatchResult{BatchName: "c", Outcome: BatchFailed, ErrorKind: ErrSearch, Error: "boom"})

	if s.Totals.Issues != 3 || s.Totals.Updated != 1 || s.Totals.Skipped != 1 || s.Totals.Failed != 1 {
		t.Errorf("Totals = %+v", s.Totals)
	}
	if s.Totals.CompletedBatches != 2 || s.Totals.FailedBatches != 1 {
		t.Errorf("batch totals = %+v", s.Totals)
	}
	if len(s.Failures) != 2 {
		t.Fatalf("Failures = %d, want 2", len(s.Failures))
	}
	if s.Failures[0].Issue != "PRJ-3" || s.Failures[0].ErrorKind != ErrNotFound {
		t.Errorf("Failures[0] = %+v", s.Failures[0])
	}
	if !s.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
	if partial.Succeeded() {
		t.Error("batch with a failed issue should not count as succeeded")
	}
}
