package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/plantpod/pod-agent/internal/model"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned once the store has been closed.
var ErrClosed = errors.New("store: closed")

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store keeps the water-contact transition log in SQLite so the last-watered
// time survives agent restarts.
type Store struct {
	db *sql.DB
}

// Open initialises the database at path, creating directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// InitSchema ensures the tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS water_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			state TEXT NOT NULL,
			source TEXT,
			occurred_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_water_events_state_time ON water_events(state, occurred_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// RecordTransition appends a transition to the log.
func (s *Store) RecordTransition(ctx context.Context, tr model.Transition) error {
	if s.db == nil {
		return ErrClosed
	}
	at := tr.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO water_events (state, source, occurred_at) VALUES (?, ?, ?)`,
		string(tr.State), tr.Source, at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert water event: %w", err)
	}
	return nil
}

// LastWatered returns the time of the latest wet transition; ok is false when
// none was ever recorded.
func (s *Store) LastWatered(ctx context.Context) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, ErrClosed
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT occurred_at FROM water_events WHERE state = ? ORDER BY occurred_at DESC LIMIT 1`,
		string(model.StateWet)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last watered: %w", err)
	}
	at, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse occurred_at %q: %w", raw, err)
	}
	return at, true, nil
}

// Recent lists the newest transitions first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.Transition, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COALESCE(source, ''), occurred_at FROM water_events ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query water events: %w", err)
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var state, source, raw string
		if err := rows.Scan(&state, &source, &raw); err != nil {
			return nil, fmt.Errorf("scan water event: %w", err)
		}
		at, err := time.Parse(timeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("parse occurred_at %q: %w", raw, err)
		}
		out = append(out, model.Transition{State: model.WaterState(state), Source: source, At: at})
	}
	return out, rows.Err()
}
