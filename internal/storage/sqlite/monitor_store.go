// Package sqlite persists monitors in a single SQLite file for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/pagewatch/internal/watch"
)

const memoryPath = ":memory:"

const monitorColumns = "id, url, description, condition, interval_seconds, last_value, " +
	"last_confidence, last_checked_at, extraction_rule, condition_met, created_at"

// MonitorStore implements watch.MonitorStore on SQLite.
type MonitorStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates the schema.
func New(ctx context.Context, path string) (*MonitorStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == memoryPath {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	store := &MonitorStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *MonitorStore) Close() error { return s.db.Close() }

func (s *MonitorStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	description      TEXT NOT NULL,
	condition        TEXT NOT NULL,
	interval_seconds INTEGER NOT NULL,
	last_value       TEXT,
	last_confidence  REAL,
	last_checked_at  TEXT,
	extraction_rule  TEXT,
	condition_met    INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_created_at_id ON monitors (created_at, id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Create inserts m unless a monitor already watches the same URL.
func (s *MonitorStore) Create(ctx context.Context, m watch.Monitor) (watch.Monitor, bool, error) {
	if m.ID == "" || m.URL == "" {
		return watch.Monitor{}, false, fmt.Errorf("monitor id and url are required")
	}
	query := `
INSERT INTO monitors (id, url, description, condition, interval_seconds, condition_met, created_at)
VALUES (?, ?, ?, ?, ?, 0, ?)
ON CONFLICT(url) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		m.ID, m.URL, m.Description, m.Condition, m.IntervalSeconds,
		m.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return watch.Monitor{}, false, fmt.Errorf("insert monitor: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return watch.Monitor{}, false, fmt.Errorf("insert monitor: %w", err)
	}
	if rows == 0 {
		existing, err := s.GetByURL(ctx, m.URL)
		if err != nil {
			return watch.Monitor{}, false, err
		}
		return existing, false, nil
	}
	stored, err := s.GetByID(ctx, m.ID)
	if err != nil {
		return watch.Monitor{}, false, err
	}
	return stored, true, nil
}

// GetByID returns the monitor with id.
func (s *MonitorStore) GetByID(ctx context.Context, id string) (watch.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	return scanMonitor(row)
}

// GetByURL returns the monitor watching url.
func (s *MonitorStore) GetByURL(ctx context.Context, url string) (watch.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE url = ?`, url)
	return scanMonitor(row)
}

// List returns every monitor ordered by creation time.
func (s *MonitorStore) List(ctx context.Context) ([]watch.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()
	var out []watch.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	return out, nil
}

// UpdateObservedValue records the outcome of a check.
func (s *MonitorStore) UpdateObservedValue(ctx context.Context, id string, obs watch.Observation) error {
	query := `
UPDATE monitors
SET last_value = ?, last_confidence = ?, last_checked_at = ?, condition_met = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		nullString(obs.Value), obs.Confidence, obs.CheckedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(obs.ConditionMet), id)
	if err != nil {
		return fmt.Errorf("update observed value: %w", err)
	}
	return requireRow(res)
}

// UpdateExtractionRule caches an XPath rule for the monitor.
func (s *MonitorStore) UpdateExtractionRule(ctx context.Context, id string, rule string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE monitors SET extraction_rule = ? WHERE id = ?`, rule, id)
	if err != nil {
		return fmt.Errorf("update extraction rule: %w", err)
	}
	return requireRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row scanner) (watch.Monitor, error) {
	var (
		m          watch.Monitor
		lastValue  sql.NullString
		lastConf   sql.NullFloat64
		lastCheck  sql.NullString
		rule       sql.NullString
		met        int
		createdStr string
	)
	err := row.Scan(&m.ID, &m.URL, &m.Description, &m.Condition, &m.IntervalSeconds,
		&lastValue, &lastConf, &lastCheck, &rule, &met, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return watch.Monitor{}, watch.ErrNotFound
	}
	if err != nil {
		return watch.Monitor{}, fmt.Errorf("scan monitor: %w", err)
	}
	if lastValue.Valid {
		m.LastValue = &lastValue.String
	}
	if lastConf.Valid {
		m.LastConfidence = &lastConf.Float64
	}
	if lastCheck.Valid {
		at, err := time.Parse(time.RFC3339Nano, lastCheck.String)
		if err != nil {
			return watch.Monitor{}, fmt.Errorf("parse last_checked_at of monitor %s: %w", m.ID, err)
		}
		m.LastCheckedAt = &at
	}
	if rule.Valid {
		m.ExtractionRule = &rule.String
	}
	m.ConditionMet = met != 0
	createdAt, err := time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return watch.Monitor{}, fmt.Errorf("parse created_at of monitor %s: %w", m.ID, err)
	}
	m.CreatedAt = createdAt
	return m, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return watch.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
