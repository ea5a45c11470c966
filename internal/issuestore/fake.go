package issuestore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// Fake is an in-memory Store for tests. Queries are registered up front and
// resolve to a fixed list of issue IDs; label state is kept per issue so a
// later search observes earlier mutations.
type Fake struct {
	mu       sync.Mutex
	pageSize int
	issues   map[string]domain.LabelSet
	queries  map[string][]string
	failures map[string][]error
	editable map[string]bool

	// SearchErr, when set, fails every search
	SearchErr error

	// OnMutate, when set, runs after every successful mutation
	OnMutate func(issueID string)

	Searches  int
	Mutations []FakeMutation
}

// FakeMutation records one MutateLabels call
type FakeMutation struct {
	IssueID string
	Add     []string
	Remove  []string
	Err     error
}

// NewFake creates a fake returning pageSize issues per search page
func NewFake(pageSize int) *Fake {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Fake{
		pageSize: pageSize,
		issues:   make(map[string]domain.LabelSet),
		queries:  make(map[string][]string),
		failures: make(map[string][]error),
		editable: make(map[string]bool),
	}
}

// AddIssue registers an issue with its current labels
func (f *Fake) AddIssue(id string, labels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[id] = domain.NewLabelSet(labels...)
}

// SetQuery makes query return the given issue IDs in order
func (f *Fake) SetQuery(query string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[query] = ids
}

// FailMutation queues errors returned by successive MutateLabels calls for
// an issue; once drained, calls succeed again
func (f *Fake) FailMutation(id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = append(f.failures[id], errs...)
}

// SetEditable marks whether the labels of an issue can be edited. Issues
// default to editable.
func (f *Fake) SetEditable(id string, editable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editable[id] = editable
}

// Labels returns the current labels of an issue
func (f *Fake) Labels(id string) domain.LabelSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues[id].Clone()
}

// MutationCount returns the number of MutateLabels calls so far
func (f *Fake) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Mutations)
}

// Search implements Store. Page tokens are offsets into the result list.
func (f *Fake) Search(ctx context.Context, query, pageToken string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches++

	if f.SearchErr != nil {
		return Page{}, f.SearchErr
	}
	ids, ok := f.queries[query]
	if !ok {
		return Page{}, fmt.Errorf("fake: unknown query %q", query)
	}

	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return Page{}, fmt.Errorf("fake: bad page token %q", pageToken)
		}
		start = n
	}
	end := start + f.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	var page Page
	for _, id := range ids[start:end] {
		page.Issues = append(page.Issues, domain.IssueRef{
			ID:     id,
			Key:    id,
			Type:   "Task",
			Labels: f.issues[id].Clone(),
		})
	}
	if end < len(ids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// MutateLabels implements Store
func (f *Fake) MutateLabels(ctx context.Context, issue domain.IssueRef, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := FakeMutation{IssueID: issue.ID, Add: add, Remove: remove}
	if queued := f.failures[issue.ID]; len(queued) > 0 {
		m.Err = queued[0]
		f.failures[issue.ID] = queued[1:]
		f.Mutations = append(f.Mutations, m)
		return m.Err
	}
	f.Mutations = append(f.Mutations, m)

	labels, ok := f.issues[issue.ID]
	if !ok {
		return &MutationError{Kind: domain.ErrNotFound, StatusCode: 404, Message: "issue does not exist"}
	}
	for _, l := range remove {
		delete(labels, l)
	}
	for _, l := range add {
		labels[l] = struct{}{}
	}
	if f.OnMutate != nil {
		f.OnMutate(issue.ID)
	}
	return nil
}

// LabelsEditable implements EditabilityChecker
func (f *Fake) LabelsEditable(ctx context.Context, issue domain.IssueRef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	editable, ok := f.editable[issue.ID]
	return !ok || editable, nil
}
