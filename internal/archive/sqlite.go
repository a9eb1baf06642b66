package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Ensure Store implements the store interfaces.
var (
	_ RecordStore     = (*Store)(nil)
	_ CheckpointStore = (*Store)(nil)
	_ RunStore        = (*Store)(nil)
)

// Store is the SQLite-backed archive holding records, checkpoints and runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DefaultPath returns the archive location under the user home directory.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".maildex", "archive.db"), nil
}

// Open opens (creating if necessary) the archive at path and initializes
// the schema. The caller owns the returned store and must Close it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("archive opened", slog.String("path", path))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			date_header TEXT NOT NULL,
			sent_unix INTEGER NOT NULL,
			snippet TEXT NOT NULL,
			body TEXT NOT NULL,
			exported_at INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_indexed ON messages(indexed_at);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			query TEXT PRIMARY KEY,
			cursor TEXT NOT NULL,
			processed INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			status TEXT NOT NULL,
			processed INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize archive schema: %w", err)
		}
	}
	return nil
}

// Put writes a message, overwriting any existing record with the same ID.
// A replaced record loses its indexed stamp so the next indexing pass
// re-embeds the fresh content.
func (s *Store) Put(ctx context.Context, msg *Message) error {
	sentUnix := int64(0)
	if !msg.Sent.IsZero() {
		sentUnix = msg.Sent.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages (
			id, thread_id, sender, recipient, subject,
			date_header, sent_unix, snippet, body, exported_at, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		msg.ID,
		msg.ThreadID,
		msg.Sender,
		msg.Recipient,
		msg.Subject,
		msg.Date,
		sentUnix,
		msg.Snippet,
		msg.Body,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", msg.ID, err)
	}
	return nil
}

// Get returns the message with the given ID, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, sender, recipient, subject,
		       date_header, sent_unix, snippet, body
		FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// Has reports whether a record with the given ID is already materialized.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check record %s: %w", id, err)
	}
	return true, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Unindexed returns up to limit records that have not been indexed yet,
// oldest export first.
func (s *Store) Unindexed(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender, recipient, subject,
		       date_header, sent_unix, snippet, body
		FROM messages WHERE indexed_at = 0
		ORDER BY exported_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unindexed records: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list unindexed records: %w", err)
	}
	return msgs, nil
}

// MarkIndexed stamps the given records as indexed.
func (s *Store) MarkIndexed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().Unix())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET indexed_at = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark records indexed: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint for the query, or nil when none exists.
func (s *Store) LoadCheckpoint(ctx context.Context, query string) (*Checkpoint, error) {
	var (
		cp          Checkpoint
		updatedUnix int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT query, cursor, processed, run_id, updated_at
		FROM checkpoints WHERE query = ?`, query).
		Scan(&cp.Query, &cp.Cursor, &cp.Processed, &cp.RunID, &updatedUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	return &cp, nil
}

// SaveCheckpoint overwrites the checkpoint for its query.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints (query, cursor, processed, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		cp.Query, cp.Cursor, cp.Processed, cp.RunID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// DeleteCheckpoint removes the checkpoint for the query.
func (s *Store) DeleteCheckpoint(ctx context.Context, query string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE query = ?`, query); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// SaveRun overwrites the run row keyed by run ID.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, query, status, processed, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Query, run.Status, run.Processed, run.StartedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun returns the run with the given ID, or nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run         Run
		startedUnix int64
		updatedUnix int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, query, status, processed, started_at, updated_at
		FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Query, &run.Status, &run.Processed, &startedUnix, &updatedUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	run.StartedAt = time.Unix(startedUnix, 0).UTC()
	run.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	return &run, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*Message, error) {
	var (
		msg      Message
		sentUnix int64
	)
	err := row.Scan(
		&msg.ID,
		&msg.ThreadID,
		&msg.Sender,
		&msg.Recipient,
		&msg.Subject,
		&msg.Date,
		&sentUnix,
		&msg.Snippet,
		&msg.Body,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	if sentUnix != 0 {
		msg.Sent = time.Unix(sentUnix, 0).UTC()
	}
	return &msg, nil
}
