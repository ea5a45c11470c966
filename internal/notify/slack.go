package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// maxSlackFailures caps the failure lines posted; the report files hold
// the complete list
const maxSlackFailures = 10

// SlackNotifier posts the run outcome to an incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color      string   `json:"color"`
	Title      string   `json:"title,omitempty"`
	Text       string   `json:"text"`
	Footer     string   `json:"footer,omitempty"`
	MarkdownIn []string `json:"mrkdwn_in,omitempty"`
}

// NewSlackNotifier creates a notifier; an empty URL disables it
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func slackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

// slackPayloadFor renders the summary attachment and, when anything failed,
// a second attachment naming the failed batches and issues
func slackPayloadFor(n Notification) slackPayload {
	summary := slackAttachment{
		Color:  slackColor(n.Type),
		Text:   n.Message,
		Footer: "label-bulk",
	}
	if n.RunID != "" {
		summary.Title = "run " + n.RunID
	}
	p := slackPayload{Text: n.Title, Attachments: []slackAttachment{summary}}
	if len(n.Failures) == 0 {
		return p
	}

	var b strings.Builder
	for i, f := range n.Failures {
		if i == maxSlackFailures {
			fmt.Fprintf(&b, "…and %d more, see the run report", len(n.Failures)-maxSlackFailures)
			break
		}
		target := f.Batch
		if f.Issue != "" {
			target += " / " + f.Issue
		}
		fmt.Fprintf(&b, "`%s` %s", target, f.ErrorKind)
		if f.Error != "" {
			fmt.Fprintf(&b, ": %s", f.Error)
		}
		b.WriteByte('\n')
	}
	p.Attachments = append(p.Attachments, slackAttachment{
		Color:      slackColor(NotifyError),
		Title:      fmt.Sprintf("%d failures", len(n.Failures)),
		Text:       strings.TrimRight(b.String(), "\n"),
		MarkdownIn: []string{"text"},
	})
	return p
}

// Send posts n to the webhook
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(slackPayloadFor(n))
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}
