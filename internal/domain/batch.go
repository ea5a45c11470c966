package domain

import (
	"fmt"
	"strings"
)

// BatchSpec is one named unit of work: a query plus a label delta
type BatchSpec struct {
	Name   string      `json:"batchName" yaml:"batchName" toml:"batchName"`
	Query  string      `json:"query" yaml:"query" toml:"query"`
	Add    []string    `json:"add" yaml:"add" toml:"add"`
	Remove []string    `json:"remove" yaml:"remove" toml:"remove"`
	Status BatchStatus `json:"status" yaml:"status" toml:"status"`

	// Invalid is set when input checks outside the batch itself, such as
	// the label space policy, rejected it
	Invalid error `json:"-" yaml:"-" toml:"-"`
}

// AddSet returns the labels to add as a set
func (b *BatchSpec) AddSet() LabelSet {
	return NewLabelSet(b.Add...)
}

// RemoveSet returns the labels to remove as a set
func (b *BatchSpec) RemoveSet() LabelSet {
	return NewLabelSet(b.Remove...)
}

// IsDone returns true if the batch has already been completed
func (b *BatchSpec) IsDone() bool {
	return b.Status == BatchDone
}

// Validate checks the fields the executor needs before touching the tracker
func (b *BatchSpec) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("batch name is required")
	}
	if strings.TrimSpace(b.Query) == "" {
		return fmt.Errorf("batch %q: query is required", b.Name)
	}
	if _, ok := ParseBatchStatus(string(b.Status)); !ok {
		return fmt.Errorf("batch %q: invalid status %q (expected %q or %q)", b.Name, b.Status, BatchTodo, BatchDone)
	}
	if b.Invalid != nil {
		return fmt.Errorf("batch %q: %w", b.Name, b.Invalid)
	}
	return nil
}
