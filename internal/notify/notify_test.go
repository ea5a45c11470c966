package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

func TestSlackNotifier_Send(t *testing.T) {
	var got slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Label run finished",
		Message: "2 batches",
		Type:    NotifySuccess,
		RunID:   "abc",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got.Text != "Label run finished" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Color != "good" || got.Attachments[0].Title != "run abc" {
		t.Errorf("Attachments = %+v", got.Attachments)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(Notification{Title: "x"}); err == nil {
		t.Error("expected error for 403 response")
	}
}

func TestSlackNotifier_DisabledWithoutURL(t *testing.T) {
	if err := NewSlackNotifier("").Send(Notification{Title: "x"}); err != nil {
		t.Errorf("Send = %v, want nil", err)
	}
}

func TestSlackNotifier_SendListsFailures(t *testing.T) {
	var got slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	summary := domain.RunSummary{RunID: "abc"}
	summary.Add(domain.BatchResult{BatchName: "broken", Outcome: domain.BatchFailed, ErrorKind: domain.ErrSearch, Error: "bad JQL"})
	partial := domain.BatchResult{BatchName: "relabel", Outcome: domain.BatchCompleted}
	partial.Add(domain.IssueOutcome{IssueID: "10", IssueKey: "OPS-10", Action: domain.ActionFailed, ErrorKind: domain.ErrPermissionDenied, Error: "no edit rights"})
	summary.Add(partial)

	if err := NewSlackNotifier(server.URL).Send(FromSummary(&summary)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(got.Attachments) != 2 {
		t.Fatalf("Attachments = %+v, want summary and failures", got.Attachments)
	}
	failures := got.Attachments[1]
	if failures.Color != "danger" || failures.Title != "2 failures" {
		t.Errorf("failures attachment = %+v", failures)
	}
	for _, want := range []string{"`broken` SEARCH_FAILURE: bad JQL", "`relabel / OPS-10` PERMISSION_DENIED: no edit rights"} {
		if !strings.Contains(failures.Text, want) {
			t.Errorf("failures text missing %q:\n%s", want, failures.Text)
		}
	}
}

func TestSlackPayload_CapsFailureLines(t *testing.T) {
	n := Notification{Title: "x", Type: NotifyError}
	for i := 0; i < maxSlackFailures+5; i++ {
		n.Failures = append(n.Failures, domain.FailureRef{Batch: "b", Issue: fmt.Sprintf("OPS-%d", i), ErrorKind: domain.ErrTransient})
	}

	p := slackPayloadFor(n)
	text := p.Attachments[1].Text
	if lines := strings.Count(text, "\n") + 1; lines != maxSlackFailures+1 {
		t.Errorf("got %d lines, want %d failures plus the overflow note:\n%s", lines, maxSlackFailures, text)
	}
	if !strings.Contains(text, "and 5 more") {
		t.Errorf("overflow note missing:\n%s", text)
	}
}

func TestSlackPayload_NoFailuresSingleAttachment(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		p := slackPayloadFor(Notification{Title: "x", Type: tt.typ})
		if len(p.Attachments) != 1 || p.Attachments[0].Color != tt.want {
			t.Errorf("type %v: attachments = %+v, want one %s attachment", tt.typ, p.Attachments, tt.want)
		}
	}
}

func TestFromSummary(t *testing.T) {
	tests := []struct {
		name      string
		summary   domain.RunSummary
		wantType  NotificationType
		wantTitle string
	}{
		{
			name:      "success",
			summary:   domain.RunSummary{Totals: domain.RunTotals{Batches: 1, CompletedBatches: 1, Issues: 3, Updated: 3}},
			wantType:  NotifySuccess,
			wantTitle: "Label run finished",
		},
		{
			name:      "issue failures",
			summary:   domain.RunSummary{Totals: domain.RunTotals{Batches: 1, CompletedBatches: 1, Issues: 3, Failed: 1}},
			wantType:  NotifyError,
			wantTitle: "Label run finished with failures",
		},
		{
			name:      "interrupted dry run",
			summary:   domain.RunSummary{DryRun: true, Totals: domain.RunTotals{Batches: 1, InterruptedBatches: 1}},
			wantType:  NotifyWarning,
			wantTitle: "Label run interrupted (dry run)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := FromSummary(&tt.summary)
			if n.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", n.Type, tt.wantType)
			}
			if n.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", n.Title, tt.wantTitle)
			}
			if !strings.Contains(n.Message, "issues:") {
				t.Errorf("Message = %q", n.Message)
			}
		})
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called, err: errors.New("offline")}
	mock3 := &mockNotifier{name: "mock3", calls: &called}

	err := NewMultiNotifier(mock1, mock2, mock3).Send(Notification{Title: "Test"})

	if len(called) != 3 {
		t.Errorf("Expected 3 calls, got %d", len(called))
	}
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Errorf("err = %v, want the failing notifier's error", err)
	}
}

func TestAppleScriptQuotes(t *testing.T) {
	got := appleScript(Notification{Title: `say "hi"`, Message: "done"})
	want := `display notification "done" with title "say \"hi\""`
	if got != want {
		t.Errorf("appleScript = %s, want %s", got, want)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
	err   error
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}
