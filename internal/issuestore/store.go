// Package issuestore defines the capability the batch engine needs from an
// issue tracker: a paginated search and a per-issue label mutation.
package issuestore

import (
	"context"
	"fmt"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// Page is one page of search results. NextPageToken is empty on the last page.
type Page struct {
	Issues        []domain.IssueRef
	NextPageToken string
}

// Store is implemented by tracker clients
type Store interface {
	// Search runs query starting at pageToken ("" for the first page)
	Search(ctx context.Context, query, pageToken string) (Page, error)

	// MutateLabels adds and removes labels on one issue. Failures should be
	// returned as *MutationError so callers can decide whether to retry.
	MutateLabels(ctx context.Context, issue domain.IssueRef, add, remove []string) error
}

// EditabilityChecker is optionally implemented by stores that can tell
// whether the labels field of an issue may be edited
type EditabilityChecker interface {
	LabelsEditable(ctx context.Context, issue domain.IssueRef) (bool, error)
}

// maxPages guards against a store that never stops returning a next token
const maxPages = 100000

// SearchAll drains every page of query before returning, so callers work on
// a snapshot rather than a live cursor over a result set they are about to
// mutate. Issues seen on an earlier page are not repeated.
func SearchAll(ctx context.Context, store Store, query string) ([]domain.IssueRef, error) {
	var all []domain.IssueRef
	seen := make(map[string]bool)
	token := ""

	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("search %q: exceeded %d pages", query, maxPages)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := store.Search(ctx, query, token)
		if err != nil {
			return nil, fmt.Errorf("search page %d: %w", page+1, err)
		}
		for _, issue := range result.Issues {
			if seen[issue.ID] {
				continue
			}
			seen[issue.ID] = true
			all = append(all, issue)
		}

		if result.NextPageToken == "" {
			return all, nil
		}
		if result.NextPageToken == token {
			return nil, fmt.Errorf("search page %d: next page token did not advance", page+1)
		}
		token = result.NextPageToken
	}
}
