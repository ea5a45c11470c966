package domain

import "time"

// IssueRef identifies an issue in the tracker together with the labels it
// carried when it was last observed
type IssueRef struct {
	ID     string
	Key    string
	Type   string
	Labels LabelSet
}

// Identifier returns the human-facing key, falling back to the opaque ID
func (r IssueRef) Identifier() string {
	if r.Key != "" {
		return r.Key
	}
	return r.ID
}

// IssueOutcome records what happened to one issue in one batch attempt
type IssueOutcome struct {
	IssueID        string    `json:"issueId"`
	IssueKey       string    `json:"issueKey,omitempty"`
	PreviousLabels []string  `json:"previousLabels"`
	TargetLabels   []string  `json:"targetLabels,omitempty"`
	Added          []string  `json:"added,omitempty"`
	Removed        []string  `json:"removed,omitempty"`
	Action         Action    `json:"action"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
	Error          string    `json:"error,omitempty"`
	Note           string    `json:"note,omitempty"`
	DryRun         bool      `json:"dryRun,omitempty"`
	Resumed        bool      `json:"resumed,omitempty"`
	Attempts       int       `json:"attempts,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Identifier returns the issue key if known, otherwise the ID
func (o IssueOutcome) Identifier() string {
	if o.IssueKey != "" {
		return o.IssueKey
	}
	return o.IssueID
}

// Resolved reports whether the issue needs no further processing. Simulated
// dry-run updates never count as resolved.
func (o IssueOutcome) Resolved() bool {
	switch o.Action {
	case ActionUpdated:
		return !o.DryRun
	case ActionSkippedNoChange:
		return true
	default:
		return false
	}
}
