package batch

import (
	"errors"
	"fmt"
	"strings"
)

// SpacePolicy decides what happens to labels containing spaces, which the
// tracker does not accept
type SpacePolicy string

const (
	SpacesReject     SpacePolicy = "reject"
	SpacesStrip      SpacePolicy = "strip"
	SpacesUnderscore SpacePolicy = "underscore"
	SpacesSkip       SpacePolicy = "skip"
)

// ParseSpacePolicy validates a policy name from config or flags
func ParseSpacePolicy(s string) (SpacePolicy, error) {
	switch p := SpacePolicy(strings.ToLower(s)); p {
	case SpacesReject, SpacesStrip, SpacesUnderscore, SpacesSkip:
		return p, nil
	case "":
		return SpacesReject, nil
	default:
		return "", fmt.Errorf("unknown label space policy %q", s)
	}
}

// Validate applies the space policy in place and checks every batch.
// Problems with a single batch are recorded on it (see BatchSpec.Invalid and
// BatchSpec.Validate) so the rest of the file can still run. The returned
// error covers the file as a whole, such as duplicate batch names.
func (f *File) Validate(policy SpacePolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	seen := make(map[string]bool, len(f.Batches))
	for i := range f.Batches {
		b := &f.Batches[i]
		b.Invalid = nil
		if b.Name != "" {
			if seen[b.Name] {
				errs = append(errs, fmt.Errorf("batch %d: duplicate batch name %q", i, b.Name))
			}
			seen[b.Name] = true
		}

		add, addErr := applySpacePolicy(b.Add, policy)
		remove, removeErr := applySpacePolicy(b.Remove, policy)
		if addErr != nil || removeErr != nil {
			b.Invalid = errors.Join(prefixErr("add", addErr), prefixErr("remove", removeErr))
			continue
		}
		b.Add, b.Remove = add, remove
	}
	return errors.Join(errs...)
}

func prefixErr(prefix string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

func applySpacePolicy(labels []string, policy SpacePolicy) ([]string, error) {
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if !strings.Contains(l, " ") {
			out = append(out, l)
			continue
		}
		switch policy {
		case SpacesStrip:
			out = append(out, strings.ReplaceAll(l, " ", ""))
		case SpacesUnderscore:
			out = append(out, strings.ReplaceAll(l, " ", "_"))
		case SpacesSkip:
		default:
			return nil, fmt.Errorf("label %q contains spaces", l)
		}
	}
	return out, nil
}
