package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"relpack/internal/security"

	_ "modernc.org/sqlite"
)

// History manages publish history in SQLite
type History struct {
	db *sql.DB
}

// NewHistory opens (or creates) the history database at dbPath
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Results include archive paths and error output; keep them private
	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, security.PermDBFile); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set database permissions: %w", err)
		}
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS publishes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT NOT NULL,
			platform TEXT NOT NULL,
			target TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			duration_seconds REAL,
			version TEXT,
			archive TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_publishes_project
		ON publishes(project, id DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordPublish records a publish step. A zero StartedAt is recorded as now.
func (h *History) RecordPublish(ctx context.Context, record *PublishRecord) (int64, error) {
	now := time.Now().UTC()
	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO publishes
		(project, platform, target, kind, status, started_at, recorded_at,
		 duration_seconds, version, archive, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Project,
		record.Platform,
		record.Target,
		record.Kind,
		record.Status,
		startedAt.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		record.DurationSeconds,
		record.Version,
		record.Archive,
		record.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert publish record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

const selectColumns = `
	SELECT id, project, platform, target, kind, status, started_at, recorded_at,
	       duration_seconds, version, archive, error_message
	FROM publishes`

// GetLatestPublish returns the most recent record for a project, or nil
func (h *History) GetLatestPublish(ctx context.Context, project string) (*PublishRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+`
		WHERE project = ?
		ORDER BY id DESC
		LIMIT 1
	`, project)

	record, err := scanPublishRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest publish: %w", err)
	}

	return record, nil
}

// GetPublishHistory returns up to limit records for a project, newest first
func (h *History) GetPublishHistory(ctx context.Context, project string, limit int) ([]PublishRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		WHERE project = ?
		ORDER BY id DESC
		LIMIT ?
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query publish history: %w", err)
	}
	return collect(rows)
}

// GetRecentPublishes returns up to limit records across all projects,
// newest first
func (h *History) GetRecentPublishes(ctx context.Context, limit int) ([]PublishRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent publishes: %w", err)
	}
	return collect(rows)
}

// GetProjectStatus returns the latest record and recent history of a project
func (h *History) GetProjectStatus(ctx context.Context, project string, limit int) (*ProjectStatus, error) {
	records, err := h.GetPublishHistory(ctx, project, limit)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		RecentHistory: records,
	}
	if status.RecentHistory == nil {
		status.RecentHistory = []PublishRecord{}
	}
	if len(records) > 0 {
		latest := records[0]
		status.LatestPublish = &latest
	}
	return status, nil
}

// GetAllProjectsStatus returns the latest record for each project
func (h *History) GetAllProjectsStatus(ctx context.Context) (map[string]*PublishRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+`
		WHERE id IN (SELECT MAX(id) FROM publishes GROUP BY project)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all projects status: %w", err)
	}

	records, err := collect(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*PublishRecord, len(records))
	for i := range records {
		result[records[i].Project] = &records[i]
	}
	return result, nil
}

func collect(rows *sql.Rows) ([]PublishRecord, error) {
	defer rows.Close()

	var records []PublishRecord
	for rows.Next() {
		record, err := scanPublishRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPublishRecord scans a database row into a PublishRecord
func scanPublishRecord(s scanner) (*PublishRecord, error) {
	var record PublishRecord
	var startedAtStr, recordedAtStr string

	err := s.Scan(
		&record.ID,
		&record.Project,
		&record.Platform,
		&record.Target,
		&record.Kind,
		&record.Status,
		&startedAtStr,
		&recordedAtStr,
		&record.DurationSeconds,
		&record.Version,
		&record.Archive,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	recordedAt, err := time.Parse(time.RFC3339, recordedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at timestamp: %w", err)
	}
	record.RecordedAt = &recordedAt

	return &record, nil
}
