package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a batch input file
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension, defaulting to JSON
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// rawBatch mirrors one entry of the input file before normalization.
// add/remove may be a string, a list, or null.
type rawBatch struct {
	Name   string `json:"batchName" yaml:"batchName" toml:"batchName"`
	Query  string `json:"query" yaml:"query" toml:"query"`
	Add    any    `json:"add" yaml:"add" toml:"add"`
	Remove any    `json:"remove" yaml:"remove" toml:"remove"`
	Status string `json:"status" yaml:"status" toml:"status"`
}

type rawTOMLDocument struct {
	Batches []rawBatch `toml:"batch"`
}

// File is a loaded batch input file. It is the only place batch status is
// written back to.
type File struct {
	Path    string
	Format  Format
	Batches []domain.BatchSpec

	// doc is the file as it was read. Write-back only touches the status
	// of each entry so keys the tool does not know about survive.
	doc document
	mu  sync.Mutex
}

// Load reads and normalizes a batch input file without validating it
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := FormatFromPath(path)

	raw, doc, err := decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	batches := make([]domain.BatchSpec, 0, len(raw))
	for i, r := range raw {
		add, err := normalizeLabels(r.Add)
		if err != nil {
			return nil, fmt.Errorf("batch %d (%s): add: %w", i, r.Name, err)
		}
		remove, err := normalizeLabels(r.Remove)
		if err != nil {
			return nil, fmt.Errorf("batch %d (%s): remove: %w", i, r.Name, err)
		}
		status := domain.BatchStatus(r.Status)
		if parsed, ok := domain.ParseBatchStatus(r.Status); ok {
			status = parsed
		}
		batches = append(batches, domain.BatchSpec{
			Name:   r.Name,
			Query:  r.Query,
			Add:    add,
			Remove: remove,
			Status: status,
		})
	}

	if doc.len() != len(batches) {
		return nil, fmt.Errorf("parsing %s: %d entries decoded but %d batches", path, doc.len(), len(batches))
	}
	return &File{Path: path, Format: format, Batches: batches, doc: doc}, nil
}

func decode(data []byte, format Format) ([]rawBatch, document, error) {
	var raw []rawBatch
	switch format {
	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, nil, err
		}
		if len(root.Content) > 0 {
			if err := root.Decode(&raw); err != nil {
				return nil, nil, err
			}
		}
		return raw, &yamlDocument{root: &root}, nil
	case FormatTOML:
		var doc rawTOMLDocument
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, nil, err
		}
		var tree map[string]any
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, nil, err
		}
		return doc.Batches, &tomlDocument{tree: tree}, nil
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, nil, err
		}
		var entries []map[string]json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, nil, err
		}
		return raw, &jsonDocument{entries: entries}, nil
	}
}

// normalizeLabels turns a string, list of strings or null into a list,
// dropping blank entries
func normalizeLabels(v any) ([]string, error) {
	switch labels := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(labels) == "" {
			return nil, nil
		}
		return []string{labels}, nil
	case []any:
		var out []string
		for _, item := range labels {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("label %v is not a string", item)
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

// MarkDone flips the named batches to DONE and writes the status back
func (f *File) MarkDone(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.doc == nil {
		return fmt.Errorf("%s was not loaded from disk", f.Path)
	}

	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	for i := range f.Batches {
		if done[f.Batches[i].Name] {
			f.Batches[i].Status = domain.BatchDone
			f.doc.setStatus(i, string(domain.BatchDone))
		}
	}

	data, err := f.doc.encode()
	if err != nil {
		return err
	}
	return writeFileAtomic(f.Path, data)
}

// writeFileAtomic replaces path via a temp file in the same directory so a
// crash never leaves a truncated input file
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
