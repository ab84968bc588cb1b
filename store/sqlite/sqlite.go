// Package sqlite implements skiff.EventLog on pure-Go SQLite. Zero CGO
// required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	skiff "github.com/avitkov/skiff"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store is an append-only conversation log backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ skiff.EventLog = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath.
// A single shared connection serializes all writers, eliminating
// SQLITE_BUSY errors from concurrent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the turns table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		tool_calls TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Append writes one turn. Turns are never updated or deleted.
func (s *Store) Append(ctx context.Context, turn skiff.Turn) error {
	var toolCalls sql.NullString
	if len(turn.ToolCalls) > 0 {
		b, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, role, text, tool_calls, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.Role, turn.Text, toolCalls, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	s.logger.Debug("sqlite: turn appended", "id", turn.ID, "role", turn.Role)
	return nil
}

// Recent returns the last limit turns in chronological order.
func (s *Store) Recent(ctx context.Context, limit int) ([]skiff.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, tool_calls, created_at FROM (
			SELECT id, role, text, tool_calls, created_at
			FROM turns ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []skiff.Turn
	for rows.Next() {
		var t skiff.Turn
		var toolCalls sql.NullString
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &toolCalls, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &t.ToolCalls); err != nil {
				s.logger.Warn("sqlite: bad tool_calls JSON", "id", t.ID, "error", err)
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
