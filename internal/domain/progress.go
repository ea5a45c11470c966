package domain

import "time"

// ProgressRecord holds the per-issue outcomes of one batch so an interrupted
// batch can be resumed
type ProgressRecord struct {
	BatchName   string                  `json:"batchName"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	Completed   bool                    `json:"completed"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
	Entries     map[string]IssueOutcome `json:"entries"`
}

// NewProgressRecord creates an empty record for a batch
func NewProgressRecord(batchName string, createdAt time.Time) *ProgressRecord {
	return &ProgressRecord{
		BatchName: batchName,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Entries:   make(map[string]IssueOutcome),
	}
}

// Resolved reports whether the issue was terminally handled in this record
func (p *ProgressRecord) Resolved(issueID string) bool {
	if p == nil {
		return false
	}
	entry, ok := p.Entries[issueID]
	return ok && entry.Resolved()
}

// Counts returns the number of resolved and failed entries
func (p *ProgressRecord) Counts() (resolved, failed int) {
	if p == nil {
		return 0, 0
	}
	for _, e := range p.Entries {
		switch {
		case e.Resolved():
			resolved++
		case e.Action == ActionFailed:
			failed++
		}
	}
	return resolved, failed
}

// Clone returns a deep-enough copy for independent mutation of Entries
func (p *ProgressRecord) Clone() *ProgressRecord {
	if p == nil {
		return nil
	}
	out := *p
	out.Entries = make(map[string]IssueOutcome, len(p.Entries))
	for k, v := range p.Entries {
		out.Entries[k] = v
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
