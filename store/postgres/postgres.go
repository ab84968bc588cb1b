// Package postgres implements skiff.EventLog on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	skiff "github.com/avitkov/skiff"
)

// StoreOption configures a Postgres Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store is an append-only conversation log backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ skiff.EventLog = (*Store)(nil)

// New connects to the database at dsn.
func New(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := &Store{pool: pool, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Init creates the turns table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		tool_calls JSONB,
		created_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Append writes one turn. Turns are never updated or deleted.
func (s *Store) Append(ctx context.Context, turn skiff.Turn) error {
	var toolCalls []byte
	if len(turn.ToolCalls) > 0 {
		b, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = b
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, role, text, tool_calls, created_at) VALUES ($1, $2, $3, $4, $5)`,
		turn.ID, turn.Role, turn.Text, toolCalls, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	s.logger.Debug("postgres: turn appended", "id", turn.ID, "role", turn.Role)
	return nil
}

// Recent returns the last limit turns in chronological order.
func (s *Store) Recent(ctx context.Context, limit int) ([]skiff.Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, role, text, tool_calls, created_at FROM (
			SELECT id, role, text, tool_calls, created_at
			FROM turns ORDER BY created_at DESC, id DESC LIMIT $1
		) latest ORDER BY created_at ASC, id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []skiff.Turn
	for rows.Next() {
		var t skiff.Turn
		var toolCalls []byte
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &toolCalls, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &t.ToolCalls); err != nil {
				s.logger.Warn("postgres: bad tool_calls JSON", "id", t.ID, "error", err)
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
