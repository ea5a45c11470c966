package progress

import (
	"context"
	"errors"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// ErrNotSupported is returned when a backend lacks an optional capability
var ErrNotSupported = errors.New("progress: operation not supported by backend")

// Backend stores progress records keyed by batch name and creation time
type Backend interface {
	// Latest returns the most recent record for a batch, or nil if none exists
	Latest(ctx context.Context, batchName string) (*domain.ProgressRecord, error)

	// Save durably writes the full record
	Save(ctx context.Context, record *domain.ProgressRecord) error
}

// EntrySaver is implemented by backends that can persist one entry without
// rewriting the whole record
type EntrySaver interface {
	SaveEntry(ctx context.Context, record *domain.ProgressRecord, issueID string) error
}

// PathLoader is implemented by backends that can load a record from an
// explicit location
type PathLoader interface {
	LoadPath(ctx context.Context, path string) (*domain.ProgressRecord, error)
}

// Lister is implemented by backends that can enumerate batches with progress
type Lister interface {
	List(ctx context.Context) ([]*domain.ProgressRecord, error)
}
