package issuestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

func TestSearchAll_DrainsPages(t *testing.T) {
	fake := NewFake(50)
	var ids []string
	for i := 0; i < 150; i++ {
		id := fmt.Sprintf("PRJ-%d", i)
		fake.AddIssue(id, "a")
		ids = append(ids, id)
	}
	fake.SetQuery("project = PRJ", ids...)

	issues, err := SearchAll(context.Background(), fake, "project = PRJ")
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 150 {
		t.Errorf("got %d issues, want 150", len(issues))
	}
	if fake.Searches != 3 {
		t.Errorf("Searches = %d, want 3 pages", fake.Searches)
	}

	seen := map[string]bool{}
	for _, issue := range issues {
		if seen[issue.ID] {
			t.Errorf("duplicate issue %s", issue.ID)
		}
		seen[issue.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("missing issue %s", id)
		}
	}
}

// shiftingStore returns an overlapping page, as a live cursor over a
// changing result set would
type shiftingStore struct{}

func (shiftingStore) Search(ctx context.Context, query, token string) (Page, error) {
	if token == "" {
		return Page{Issues: []domain.IssueRef{{ID: "1"}, {ID: "2"}}, NextPageToken: "2"}, nil
	}
	return Page{Issues: []domain.IssueRef{{ID: "2"}, {ID: "3"}}}, nil
}

func (shiftingStore) MutateLabels(ctx context.Context, issue domain.IssueRef, add, remove []string) error {
	return nil
}

func TestSearchAll_Dedupes(t *testing.T) {
	issues, err := SearchAll(context.Background(), shiftingStore{}, "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 3 {
		t.Errorf("got %d issues, want 3 distinct", len(issues))
	}
}

type stuckStore struct{ shiftingStore }

func (stuckStore) Search(ctx context.Context, query, token string) (Page, error) {
	return Page{Issues: []domain.IssueRef{{ID: "1"}}, NextPageToken: "same"}, nil
}

func TestSearchAll_StuckToken(t *testing.T) {
	if _, err := SearchAll(context.Background(), stuckStore{}, "q"); err == nil {
		t.Error("non-advancing page token should error")
	}
}

func TestSearchAll_Error(t *testing.T) {
	fake := NewFake(10)
	fake.SearchErr = errors.New("boom")
	if _, err := SearchAll(context.Background(), fake, "q"); err == nil {
		t.Error("search error should propagate")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want domain.ErrorKind
	}{
		{nil, ""},
		{&MutationError{Kind: domain.ErrRateLimited}, domain.ErrRateLimited},
		{fmt.Errorf("wrapped: %w", &MutationError{Kind: domain.ErrNotFound}), domain.ErrNotFound},
		{context.DeadlineExceeded, domain.ErrTransient},
		{errors.New("plain"), domain.ErrOther},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ErrorKind
	}{
		{429, domain.ErrRateLimited},
		{401, domain.ErrPermissionDenied},
		{403, domain.ErrPermissionDenied},
		{404, domain.ErrNotFound},
		{500, domain.ErrTransient},
		{503, domain.ErrTransient},
		{400, domain.ErrOther},
	}
	for _, tt := range tests {
		if got := KindForStatus(tt.status); got != tt.want {
			t.Errorf("KindForStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		kind domain.ErrorKind
		want bool
	}{
		{domain.ErrRateLimited, true},
		{domain.ErrTransient, true},
		{domain.ErrOther, true},
		{domain.ErrPermissionDenied, false},
		{domain.ErrNotFound, false},
	}
	for _, tt := range tests {
		if got := IsRetriable(&MutationError{Kind: tt.kind}); got != tt.want {
			t.Errorf("IsRetriable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
