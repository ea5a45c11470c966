package domain

import (
	"encoding/json"
	"sort"
)

// LabelSet is an unordered set of issue labels
type LabelSet map[string]struct{}

// NewLabelSet builds a set from the given labels, dropping empty strings
func NewLabelSet(labels ...string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		if l != "" {
			s[l] = struct{}{}
		}
	}
	return s
}

// Has reports whether label is in the set
func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Sorted returns the labels in lexical order
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets contain the same labels
func (s LabelSet) Equal(other LabelSet) bool {
	if len(s) != len(other) {
		return false
	}
	for l := range s {
		if !other.Has(l) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy
func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// Minus returns the labels of s that are not in other, sorted
func (s LabelSet) Minus(other LabelSet) []string {
	var out []string
	for l := range s {
		if !other.Has(l) {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of labels
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	*s = NewLabelSet(labels...)
	return nil
}

// TargetLabels computes (current \ remove) ∪ add. A label present in both
// add and remove ends up in the target: add wins.
func TargetLabels(current, add, remove LabelSet) LabelSet {
	target := make(LabelSet, len(current)+len(add))
	for l := range current {
		if !remove.Has(l) {
			target[l] = struct{}{}
		}
	}
	for l := range add {
		target[l] = struct{}{}
	}
	return target
}

// LabelDelta is the minimal change that moves an issue to its target labels
type LabelDelta struct {
	Add    []string
	Remove []string
}

// Empty reports whether the delta changes nothing
func (d LabelDelta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Diff returns the labels to add and remove to turn current into target
func Diff(current, target LabelSet) LabelDelta {
	return LabelDelta{
		Add:    target.Minus(current),
		Remove: current.Minus(target),
	}
}
