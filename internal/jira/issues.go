package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/issuestore"
)

type searchResponse struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	Issues     []issueEntry `json:"issues"`
}

type issueEntry struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Labels []string `json:"labels"`
	} `json:"fields"`
}

// Search runs a JQL query. The page token is the startAt offset of the page.
func (c *Client) Search(ctx context.Context, query, pageToken string) (issuestore.Page, error) {
	startAt := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return issuestore.Page{}, fmt.Errorf("jira: invalid page token %q", pageToken)
		}
		startAt = n
	}

	params := url.Values{}
	params.Set("jql", query)
	params.Set("fields", "issuetype,labels")
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(c.pageSize))

	data, err := c.do(ctx, http.MethodGet, c.apiURL("/search")+"?"+params.Encode(), nil)
	if err != nil {
		return issuestore.Page{}, err
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return issuestore.Page{}, fmt.Errorf("jira: parsing search response: %w", err)
	}

	page := issuestore.Page{Issues: make([]domain.IssueRef, 0, len(resp.Issues))}
	for _, issue := range resp.Issues {
		page.Issues = append(page.Issues, domain.IssueRef{
			ID:     issue.ID,
			Key:    issue.Key,
			Type:   issue.Fields.IssueType.Name,
			Labels: domain.NewLabelSet(issue.Fields.Labels...),
		})
	}

	next := startAt + len(resp.Issues)
	if len(resp.Issues) > 0 && next < resp.Total {
		page.NextPageToken = strconv.Itoa(next)
	}

	c.logger.Debug("retrieved search page",
		"start_at", startAt,
		"count", len(resp.Issues),
		"total", resp.Total,
	)
	return page, nil
}

type labelOp struct {
	Add    string `json:"add,omitempty"`
	Remove string `json:"remove,omitempty"`
}

type updateRequest struct {
	Update struct {
		Labels []labelOp `json:"labels"`
	} `json:"update"`
}

// MutateLabels applies add and remove operations to one issue in a single
// edit request
func (c *Client) MutateLabels(ctx context.Context, issue domain.IssueRef, add, remove []string) error {
	var body updateRequest
	body.Update.Labels = make([]labelOp, 0, len(add)+len(remove))
	for _, l := range add {
		body.Update.Labels = append(body.Update.Labels, labelOp{Add: l})
	}
	for _, l := range remove {
		body.Update.Labels = append(body.Update.Labels, labelOp{Remove: l})
	}

	_, err := c.do(ctx, http.MethodPut, c.apiURL("/issue/"+url.PathEscape(issue.Identifier())), body)
	return err
}

type editMeta struct {
	Fields map[string]struct {
		Operations []string `json:"operations"`
	} `json:"fields"`
}

// LabelsEditable reports whether the labels field supports both add and
// remove. Results are cached per issue type.
func (c *Client) LabelsEditable(ctx context.Context, issue domain.IssueRef) (bool, error) {
	if issue.Type != "" {
		c.editMu.Lock()
		editable, ok := c.editCache[issue.Type]
		c.editMu.Unlock()
		if ok {
			return editable, nil
		}
	}

	data, err := c.do(ctx, http.MethodGet, c.apiURL("/issue/"+url.PathEscape(issue.Identifier())+"/editmeta"), nil)
	if err != nil {
		return false, err
	}
	var meta editMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return false, fmt.Errorf("jira: parsing edit metadata: %w", err)
	}

	editable := false
	if field, ok := meta.Fields["labels"]; ok {
		editable = contains(field.Operations, "add") && contains(field.Operations, "remove")
	}

	if issue.Type != "" {
		c.editMu.Lock()
		c.editCache[issue.Type] = editable
		c.editMu.Unlock()
	}
	c.logger.Debug("label editability", "issue_type", issue.Type, "editable", editable)
	return editable, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
