// Package report writes batch result files and the final run summary, and
// renders the summary for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

const stampFormat = "20060102_150405"

// Writer writes result files into one output directory
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates the output directory if needed
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// WriteBatch writes results_<batch>_<timestamp>.json and records the path
// on the result
func (w *Writer) WriteBatch(result *domain.BatchResult) error {
	name := fmt.Sprintf("results_%s_%s.json", safeName(result.BatchName), w.now().Format(stampFormat))
	path := filepath.Join(w.dir, name)
	result.ResultFile = path
	if err := writeJSON(path, result); err != nil {
		result.ResultFile = ""
		return fmt.Errorf("writing results for %q: %w", result.BatchName, err)
	}
	return nil
}

// WriteSummary writes final_results_<timestamp>.json and returns its path
func (w *Writer) WriteSummary(summary *domain.RunSummary) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("final_results_%s.json", w.now().Format(stampFormat)))
	if err := writeJSON(path, summary); err != nil {
		return "", fmt.Errorf("writing run summary: %w", err)
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func safeName(s string) string {
	return strings.NewReplacer(" ", "_", "/", "_", string(filepath.Separator), "_").Replace(s)
}
