package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/issuestore"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:  server.URL,
		Email:    "bot@example.com",
		APIToken: "secret",
		PageSize: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewClient_Auth(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"basic", Config{BaseURL: "https://x", Email: "a", APIToken: "b"}, false},
		{"bearer", Config{BaseURL: "https://x", BearerToken: "t"}, false},
		{"both", Config{BaseURL: "https://x", Email: "a", APIToken: "b", BearerToken: "t"}, true},
		{"none", Config{BaseURL: "https://x"}, true},
		{"no url", Config{BearerToken: "t"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Search_Paginates(t *testing.T) {
	all := []string{"A-1", "A-2", "A-3"}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/3/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "bot@example.com" || pass != "secret" {
			t.Error("missing basic auth")
		}
		if got := r.URL.Query().Get("jql"); got != "issue in (A-1, A-2, A-3)" {
			t.Errorf("jql = %q", got)
		}
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		end := startAt + maxResults
		if end > len(all) {
			end = len(all)
		}

		resp := map[string]any{"startAt": startAt, "maxResults": maxResults, "total": len(all)}
		var issues []map[string]any
		for _, key := range all[startAt:end] {
			issues = append(issues, map[string]any{
				"id":  "id-" + key,
				"key": key,
				"fields": map[string]any{
					"issuetype": map[string]any{"name": "Bug"},
					"labels":    []string{"OldLabel"},
				},
			})
		}
		resp["issues"] = issues
		json.NewEncoder(w).Encode(resp)
	})

	issues, err := issuestore.SearchAll(context.Background(), client, "issue in (A-1, A-2, A-3)")
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 3 {
		t.Fatalf("got %d issues, want 3", len(issues))
	}
	if issues[2].Key != "A-3" || issues[2].ID != "id-A-3" || issues[2].Type != "Bug" {
		t.Errorf("issues[2] = %+v", issues[2])
	}
	if !issues[0].Labels.Has("OldLabel") {
		t.Errorf("labels = %v, want OldLabel", issues[0].Labels.Sorted())
	}
}

func TestClient_MutateLabels(t *testing.T) {
	var got updateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/rest/api/3/issue/A-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.MutateLabels(context.Background(), domain.IssueRef{ID: "1", Key: "A-1"}, []string{"NewLabel"}, []string{"OldLabel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Update.Labels) != 2 || got.Update.Labels[0].Add != "NewLabel" || got.Update.Labels[1].Remove != "OldLabel" {
		t.Errorf("update = %+v", got.Update.Labels)
	}
}

func TestClient_MutateLabels_Errors(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		header    map[string]string
		wantKind  domain.ErrorKind
		wantMsg   string
		wantRetry time.Duration
	}{
		{429, `{}`, map[string]string{"Retry-After": "7"}, domain.ErrRateLimited, "", 7 * time.Second},
		{403, `{"errorMessages":["You do not have permission"]}`, nil, domain.ErrPermissionDenied, "You do not have permission", 0},
		{404, `{"errorMessages":["Issue does not exist"]}`, nil, domain.ErrNotFound, "Issue does not exist", 0},
		{502, `bad gateway`, nil, domain.ErrTransient, "bad gateway", 0},
		{400, `{"errors":{"labels":"invalid label"}}`, nil, domain.ErrOther, "labels: invalid label", 0},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := client.MutateLabels(context.Background(), domain.IssueRef{Key: "A-1"}, []string{"x"}, nil)
			var me *issuestore.MutationError
			if !errors.As(err, &me) {
				t.Fatalf("error = %v, want *MutationError", err)
			}
			if me.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", me.Kind, tt.wantKind)
			}
			if tt.wantMsg != "" && me.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", me.Message, tt.wantMsg)
			}
			if me.RetryAfter != tt.wantRetry {
				t.Errorf("RetryAfter = %v, want %v", me.RetryAfter, tt.wantRetry)
			}
		})
	}
}

func TestClient_BearerAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pat-123" {
			t.Errorf("Authorization = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, BearerToken: "pat-123", APIVersion: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.MutateLabels(context.Background(), domain.IssueRef{Key: "A-1"}, []string{"x"}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestClient_LabelsEditable_Cached(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/rest/api/3/issue/A-1/editmeta" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"fields":{"labels":{"operations":["add","set","remove"]}}}`))
	})

	issue := domain.IssueRef{Key: "A-1", Type: "Story"}
	for i := 0; i < 2; i++ {
		editable, err := client.LabelsEditable(context.Background(), issue)
		if err != nil {
			t.Fatal(err)
		}
		if !editable {
			t.Error("labels should be editable")
		}
	}
	if calls != 1 {
		t.Errorf("editmeta calls = %d, want 1 (cached per issue type)", calls)
	}
}

func TestClient_LabelsEditable_MissingField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fields":{"summary":{"operations":["set"]}}}`))
	})
	editable, err := client.LabelsEditable(context.Background(), domain.IssueRef{Key: "A-1", Type: "Epic"})
	if err != nil {
		t.Fatal(err)
	}
	if editable {
		t.Error("issue without labels field should not be editable")
	}
}
