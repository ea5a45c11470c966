package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

// NotificationType represents the severity of a notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference

	// Failures lists failed batches and issues for notifiers that have room
	// for detail
	Failures []domain.FailureRef
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// FromSummary builds the end-of-run notification
func FromSummary(s *domain.RunSummary) Notification {
	t := s.Totals
	n := Notification{RunID: s.RunID, Failures: s.Failures}

	switch {
	case t.InterruptedBatches > 0:
		n.Type = NotifyWarning
		n.Title = "Label run interrupted"
	case t.Failed > 0 || t.FailedBatches > 0:
		n.Type = NotifyError
		n.Title = "Label run finished with failures"
	default:
		n.Type = NotifySuccess
		n.Title = "Label run finished"
	}
	if s.DryRun {
		n.Title += " (dry run)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d batches: %d completed, %d skipped, %d failed", t.Batches, t.CompletedBatches, t.SkippedBatches, t.FailedBatches)
	if t.InterruptedBatches > 0 {
		fmt.Fprintf(&b, ", %d interrupted", t.InterruptedBatches)
	}
	fmt.Fprintf(&b, "\n%d issues: %d updated, %d skipped, %d failed", t.Issues, t.Updated, t.Skipped, t.Failed)
	if len(s.Warnings) > 0 {
		fmt.Fprintf(&b, "\n%d warnings", len(s.Warnings))
	}
	n.Message = b.String()
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers and joins their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
