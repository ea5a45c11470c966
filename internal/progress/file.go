package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// stampFormat is the run timestamp embedded in progress file names
const stampFormat = "20060102_150405"

var stampSuffix = regexp.MustCompile(`^\d{8}_\d{6}\.json$`)

// FileBackend keeps one JSON file per batch attempt:
// <dir>/progress_<batch>_<timestamp>.json
type FileBackend struct {
	dir string
}

var (
	_ Backend    = (*FileBackend)(nil)
	_ PathLoader = (*FileBackend)(nil)
	_ Lister     = (*FileBackend)(nil)
)

// NewFileBackend creates the directory if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// SafeName makes a batch name usable inside a file name
func SafeName(batchName string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_", string(filepath.Separator), "_")
	return replacer.Replace(batchName)
}

// PathFor returns the file a record is stored in
func (b *FileBackend) PathFor(record *domain.ProgressRecord) string {
	name := fmt.Sprintf("progress_%s_%s.json", SafeName(record.BatchName), record.CreatedAt.Format(stampFormat))
	return filepath.Join(b.dir, name)
}

// Latest returns the newest progress file for the batch
func (b *FileBackend) Latest(ctx context.Context, batchName string) (*domain.ProgressRecord, error) {
	prefix := "progress_" + SafeName(batchName) + "_"
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if stampSuffix.MatchString(strings.TrimPrefix(name, prefix)) {
			candidates = append(candidates, name)
		}
	}
	// Timestamps sort lexically; newest first
	sort.Sort(sort.Reverse(sort.StringSlice(candidates)))

	for _, name := range candidates {
		record, err := b.LoadPath(ctx, filepath.Join(b.dir, name))
		if err != nil {
			return nil, err
		}
		// Different names can map to the same file prefix
		if record.BatchName == batchName {
			return record, nil
		}
	}
	return nil, nil
}

// LoadPath reads one progress file
func (b *FileBackend) LoadPath(ctx context.Context, path string) (*domain.ProgressRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record domain.ProgressRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if record.Entries == nil {
		record.Entries = make(map[string]domain.IssueOutcome)
	}
	return &record, nil
}

// Save rewrites the record's file atomically
func (b *FileBackend) Save(ctx context.Context, record *domain.ProgressRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(b.PathFor(record), data)
}

// List returns the latest record of every batch with a progress file
func (b *FileBackend) List(ctx context.Context) ([]*domain.ProgressRecord, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*domain.ProgressRecord)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "progress_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		record, err := b.LoadPath(ctx, filepath.Join(b.dir, e.Name()))
		if err != nil {
			continue
		}
		if cur, ok := latest[record.BatchName]; !ok || record.CreatedAt.After(cur.CreatedAt) {
			latest[record.BatchName] = record
		}
	}

	out := make([]*domain.ProgressRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchName < out[j].BatchName })
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
