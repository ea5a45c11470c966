package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps progress records in a SQLite database
type SQLiteBackend struct {
	db *sql.DB
}

var (
	_ Backend    = (*SQLiteBackend)(nil)
	_ EntrySaver = (*SQLiteBackend)(nil)
	_ Lister     = (*SQLiteBackend)(nil)
)

// NewSQLiteBackend opens (or creates) the database at dbPath
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Latest returns the newest record for the batch with all its entries
func (s *SQLiteBackend) Latest(ctx context.Context, batchName string) (*domain.ProgressRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_name, created_at, updated_at, completed, completed_at
		FROM progress_records WHERE batch_name = ?
		ORDER BY created_at DESC LIMIT 1
	`, batchName)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadEntries(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Save writes the record row and every entry in one transaction
func (s *SQLiteBackend) Save(ctx context.Context, record *domain.ProgressRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertRecord(ctx, tx, record); err != nil {
		return err
	}
	for id, entry := range record.Entries {
		if err := upsertEntry(ctx, tx, record, id, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveEntry writes the record row and a single entry
func (s *SQLiteBackend) SaveEntry(ctx context.Context, record *domain.ProgressRecord, issueID string) error {
	entry, ok := record.Entries[issueID]
	if !ok {
		return fmt.Errorf("no entry for issue %s", issueID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertRecord(ctx, tx, record); err != nil {
		return err
	}
	if err := upsertEntry(ctx, tx, record, issueID, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns the newest record of each batch
func (s *SQLiteBackend) List(ctx context.Context) ([]*domain.ProgressRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.batch_name, r.created_at, r.updated_at, r.completed, r.completed_at
		FROM progress_records r
		WHERE r.created_at = (
			SELECT MAX(created_at) FROM progress_records WHERE batch_name = r.batch_name
		)
		ORDER BY r.batch_name
	`)
	if err != nil {
		return nil, err
	}

	var records []*domain.ProgressRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, record := range records {
		if err := s.loadEntries(ctx, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteBackend) loadEntries(ctx context.Context, record *domain.ProgressRecord) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, outcome FROM progress_entries
		WHERE batch_name = ? AND created_at = ?
	`, record.BatchName, record.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, outcomeJSON string
		if err := rows.Scan(&id, &outcomeJSON); err != nil {
			return err
		}
		var outcome domain.IssueOutcome
		if err := json.Unmarshal([]byte(outcomeJSON), &outcome); err != nil {
			return fmt.Errorf("decoding entry %s: %w", id, err)
		}
		record.Entries[id] = outcome
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.ProgressRecord, error) {
	var (
		name                 string
		createdAt, updatedAt int64
		completed            bool
		completedAt          sql.NullInt64
	)
	if err := row.Scan(&name, &createdAt, &updatedAt, &completed, &completedAt); err != nil {
		return nil, err
	}

	record := domain.NewProgressRecord(name, time.Unix(0, createdAt))
	record.UpdatedAt = time.Unix(0, updatedAt)
	record.Completed = completed
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		record.CompletedAt = &t
	}
	return record, nil
}

func upsertRecord(ctx context.Context, tx *sql.Tx, record *domain.ProgressRecord) error {
	var completedAt sql.NullInt64
	if record.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: record.CompletedAt.UnixNano(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO progress_records (batch_name, created_at, updated_at, completed, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(batch_name, created_at) DO UPDATE SET
			updated_at = excluded.updated_at,
			completed = excluded.completed,
			completed_at = excluded.completed_at
	`,
		record.BatchName,
		record.CreatedAt.UnixNano(),
		record.UpdatedAt.UnixNano(),
		record.Completed,
		completedAt,
	)
	return err
}

func upsertEntry(ctx context.Context, tx *sql.Tx, record *domain.ProgressRecord, issueID string, entry domain.IssueOutcome) error {
	outcomeJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO progress_entries (batch_name, created_at, issue_id, action, outcome)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(batch_name, created_at, issue_id) DO UPDATE SET
			action = excluded.action,
			outcome = excluded.outcome
	`,
		record.BatchName,
		record.CreatedAt.UnixNano(),
		issueID,
		string(entry.Action),
		string(outcomeJSON),
	)
	return err
}
