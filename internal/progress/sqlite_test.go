package progress

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
)

func TestSQLiteBackend_SaveAndLatest(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	record := domain.NewProgressRecord("Batch", time.Date(2024, 4, 1, 10, 0, 0, 123, time.UTC))
	record.Entries["1"] = domain.IssueOutcome{IssueID: "1", IssueKey: "PROJ-1", Action: domain.ActionUpdated}
	record.Entries["2"] = domain.IssueOutcome{IssueID: "2", Action: domain.ActionFailed, ErrorKind: domain.ErrNotFound}
	if err := backend.Save(ctx, record); err != nil {
		t.Fatal(err)
	}

	got, err := backend.Latest(ctx, "Batch")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("Latest returned nil")
	}
	if !got.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, record.CreatedAt)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(got.Entries))
	}
	if got.Entries["1"].IssueKey != "PROJ-1" {
		t.Errorf("entry 1 = %+v", got.Entries["1"])
	}
	if got.Entries["2"].ErrorKind != domain.ErrNotFound {
		t.Errorf("entry 2 = %+v", got.Entries["2"])
	}
}

func TestSQLiteBackend_SaveEntryAndComplete(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "sub", "progress.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	tracker := NewTracker(backend, WithClock(fixedClock()))
	tracker.Begin(ctx, "B", nil)
	tracker.Record(ctx, "B", domain.IssueOutcome{IssueID: "7", Action: domain.ActionSkippedNoChange})
	tracker.Finalize(ctx, "B")

	got, err := backend.Latest(ctx, "B")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Completed || got.CompletedAt == nil {
		t.Errorf("record not completed: %+v", got)
	}
	if !got.Resolved("7") {
		t.Error("entry 7 missing")
	}
}

func TestSQLiteBackend_LatestNone(t *testing.T) {
	backend, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	got, err := backend.Latest(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("Latest = %+v, want nil", got)
	}
}

func TestSQLiteBackend_List(t *testing.T) {
	ctx := context.Background()
	backend, err := NewSQLiteBackend(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	for _, r := range []*domain.ProgressRecord{
		domain.NewProgressRecord("x", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		domain.NewProgressRecord("x", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
		domain.NewProgressRecord("y", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)),
	} {
		if err := backend.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	list, err := backend.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("List = %d records, want 2", len(list))
	}
	if list[0].BatchName != "x" || list[0].CreatedAt.Day() != 5 {
		t.Errorf("list[0] = %s %v", list[0].BatchName, list[0].CreatedAt)
	}
}
