package progress

// Times are stored as unix nanoseconds so the composite keys compare exactly
const schema = `
CREATE TABLE IF NOT EXISTS progress_records (
    batch_name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at INTEGER,
    PRIMARY KEY (batch_name, created_at)
);

CREATE INDEX IF NOT EXISTS idx_progress_records_batch ON progress_records(batch_name, created_at DESC);

CREATE TABLE IF NOT EXISTS progress_entries (
    batch_name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    issue_id TEXT NOT NULL,
    action TEXT NOT NULL,
    outcome TEXT NOT NULL,
    PRIMARY KEY (batch_name, created_at, issue_id),
    FOREIGN KEY (batch_name, created_at) REFERENCES progress_records(batch_name, created_at) ON DELETE CASCADE
);
`
