package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/moviegraph/store"
)

// SqliteJournal implements store.Journal using SQLite
type SqliteJournal struct {
	db        *sql.DB
	tableName string
}

var _ store.Journal = (*SqliteJournal)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "query_journal"
}

// NewSqliteJournal opens the database at opts.Path and creates the journal table.
func NewSqliteJournal(opts SqliteOptions) (*SqliteJournal, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "query_journal"
	}

	journal := &SqliteJournal{
		db:        db,
		tableName: tableName,
	}

	if err := journal.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return journal, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteJournal) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			failed_stage TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			entry TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_started_at ON %s (started_at);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteJournal) Close() error {
	return s.db.Close()
}

// Append stores an entry, replacing any entry with the same id.
func (s *SqliteJournal) Append(ctx context.Context, entry *store.Entry) error {
	data, err := store.Encode(entry)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, mode, failed_stage, started_at, entry)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			failed_stage = excluded.failed_stage,
			started_at = excluded.started_at,
			entry = excluded.entry
	`, s.tableName)

	// started_at is stored as unix nanoseconds so ordering does not depend on text formats.
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Mode,
		entry.FailedStage,
		entry.StartedAt.UnixNano(),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID
func (s *SqliteJournal) Get(ctx context.Context, id string) (*store.Entry, error) {
	query := fmt.Sprintf(`SELECT entry FROM %s WHERE id = ?`, s.tableName)

	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to load journal entry: %w", err)
	}
	return store.Decode([]byte(data))
}

// List returns entries newest first.
func (s *SqliteJournal) List(ctx context.Context, limit int) ([]*store.Entry, error) {
	query := fmt.Sprintf(`SELECT entry FROM %s ORDER BY started_at DESC, rowid DESC`, s.tableName)
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*store.Entry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		entry, err := store.Decode([]byte(data))
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
