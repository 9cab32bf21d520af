package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/moviegraph/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresJournal implements store.Journal using PostgreSQL
type PostgresJournal struct {
	pool      DBPool
	tableName string
}

var _ store.Journal = (*PostgresJournal)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "query_journal"
}

const defaultTableName = "query_journal"

// NewPostgresJournal connects to Postgres and creates the journal table when missing.
func NewPostgresJournal(ctx context.Context, opts PostgresOptions) (*PostgresJournal, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	journal := NewPostgresJournalWithPool(pool, opts.TableName)
	if err := journal.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return journal, nil
}

// NewPostgresJournalWithPool creates a journal on an existing pool
// Useful for testing with mocks
func NewPostgresJournalWithPool(pool DBPool, tableName string) *PostgresJournal {
	if tableName == "" {
		tableName = defaultTableName
	}
	return &PostgresJournal{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresJournal) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			failed_stage TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			entry JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_started_at ON %s (started_at DESC);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresJournal) Close() error {
	s.pool.Close()
	return nil
}

// Append stores an entry, replacing any entry with the same id.
func (s *PostgresJournal) Append(ctx context.Context, entry *store.Entry) error {
	data, err := store.Encode(entry)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, mode, failed_stage, started_at, entry)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			mode = EXCLUDED.mode,
			failed_stage = EXCLUDED.failed_stage,
			started_at = EXCLUDED.started_at,
			entry = EXCLUDED.entry
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		entry.ID,
		entry.Mode,
		entry.FailedStage,
		entry.StartedAt,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID
func (s *PostgresJournal) Get(ctx context.Context, id string) (*store.Entry, error) {
	query := fmt.Sprintf(`SELECT entry FROM %s WHERE id = $1`, s.tableName)

	var data []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to load journal entry: %w", err)
	}
	return store.Decode(data)
}

// List returns entries newest first.
func (s *PostgresJournal) List(ctx context.Context, limit int) ([]*store.Entry, error) {
	query := fmt.Sprintf(`SELECT entry FROM %s ORDER BY started_at DESC`, s.tableName)
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*store.Entry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		entry, err := store.Decode(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return entries, nil
}
