package domain

// BatchStatus represents the completion state of a batch in the input file
type BatchStatus string

const (
	BatchTodo BatchStatus = "TO DO"
	BatchDone BatchStatus = "DONE"
)

// ParseBatchStatus accepts the canonical values plus the "TODO" spelling
func ParseBatchStatus(s string) (BatchStatus, bool) {
	switch s {
	case string(BatchTodo), "TODO":
		return BatchTodo, true
	case string(BatchDone):
		return BatchDone, true
	default:
		return "", false
	}
}

// Action is the outcome recorded for one issue in one batch attempt
type Action string

const (
	ActionUpdated            Action = "UPDATED"
	ActionSkippedNoChange    Action = "SKIPPED_NO_CHANGE"
	ActionSkippedNotEditable Action = "SKIPPED_NOT_EDITABLE"
	ActionFailed             Action = "FAILED"
)

// ErrorKind classifies failures at issue and batch level
type ErrorKind string

const (
	// Issue-level mutation failures
	ErrRateLimited      ErrorKind = "RATE_LIMITED"
	ErrPermissionDenied ErrorKind = "PERMISSION_DENIED"
	ErrNotFound         ErrorKind = "NOT_FOUND"
	ErrTransient        ErrorKind = "TRANSIENT"
	ErrOther            ErrorKind = "OTHER"

	// Batch-level failures
	ErrValidation  ErrorKind = "VALIDATION"
	ErrSearch      ErrorKind = "SEARCH_FAILURE"
	ErrPersistence ErrorKind = "PERSISTENCE_FAILURE"
	ErrInterrupted ErrorKind = "INTERRUPTED"
)

// BatchOutcome is the overall state of one batch in a run
type BatchOutcome string

const (
	BatchCompleted   BatchOutcome = "COMPLETED"
	BatchSkipped     BatchOutcome = "SKIPPED"
	BatchFailed      BatchOutcome = "FAILED"
	BatchInterrupted BatchOutcome = "INTERRUPTED"
)
