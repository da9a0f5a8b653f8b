// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "monitors"

const monitorColumns = "id, url, description, condition, interval_seconds, last_value, " +
	"last_confidence, last_checked_at, extraction_rule, condition_met, created_at"

// Config controls the Postgres connection pool used for monitors.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// MonitorStore implements watch.MonitorStore on Postgres.
type MonitorStore struct {
	pool  pool
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*MonitorStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*MonitorStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &MonitorStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *MonitorStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the monitors table when it does not exist.
func (s *MonitorStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id               TEXT PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	description      TEXT NOT NULL,
	condition        TEXT NOT NULL,
	interval_seconds INTEGER NOT NULL,
	last_value       TEXT,
	last_confidence  DOUBLE PRECISION,
	last_checked_at  TIMESTAMPTZ,
	extraction_rule  TEXT,
	condition_met    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// Create inserts m unless a monitor already watches the same URL.
func (s *MonitorStore) Create(ctx context.Context, m watch.Monitor) (watch.Monitor, bool, error) {
	if m.ID == "" || m.URL == "" {
		return watch.Monitor{}, false, fmt.Errorf("monitor id and url are required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, url, description, condition, interval_seconds, condition_met, created_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6)
ON CONFLICT (url) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, m.ID, m.URL, m.Description, m.Condition, m.IntervalSeconds, m.CreatedAt.UTC())
	if err != nil {
		return watch.Monitor{}, false, fmt.Errorf("insert monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, monitorColumns, s.table)
	return scanMonitor(s.pool.QueryRow(ctx, query, id))
}

// GetByURL returns the monitor watching url.
func (s *MonitorStore) GetByURL(ctx context.Context, url string) (watch.Monitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = $1`, monitorColumns, s.table)
	return scanMonitor(s.pool.QueryRow(ctx, query, url))
}

// List returns every monitor ordered by creation time.
func (s *MonitorStore) List(ctx context.Context) ([]watch.Monitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id`, monitorColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
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
	query := fmt.Sprintf(`
UPDATE %s
SET last_value = $1, last_confidence = $2, last_checked_at = $3, condition_met = $4
WHERE id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, obs.Value, obs.Confidence, obs.CheckedAt.UTC(), obs.ConditionMet, id)
	if err != nil {
		return fmt.Errorf("update observed value: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}

// UpdateExtractionRule caches an XPath rule for the monitor.
func (s *MonitorStore) UpdateExtractionRule(ctx context.Context, id string, rule string) error {
	query := fmt.Sprintf(`UPDATE %s SET extraction_rule = $1 WHERE id = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, rule, id)
	if err != nil {
		return fmt.Errorf("update extraction rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return watch.ErrNotFound
	}
	return nil
}

func scanMonitor(row pgx.Row) (watch.Monitor, error) {
	var m watch.Monitor
	err := row.Scan(&m.ID, &m.URL, &m.Description, &m.Condition, &m.IntervalSeconds,
		&m.LastValue, &m.LastConfidence, &m.LastCheckedAt, &m.ExtractionRule,
		&m.ConditionMet, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return watch.Monitor{}, watch.ErrNotFound
	}
	if err != nil {
		return watch.Monitor{}, fmt.Errorf("scan monitor: %w", err)
	}
	return m, nil
}
