package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zjrosen/fsync/internal/log"
)

// Operation is the kind of recorded change.
type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationDownload Operation = "download"
	OperationRemove   Operation = "remove"
)

// Entry is one recorded transfer or removal.
type Entry struct {
	ID          int64
	SessionID   string
	Pair        string
	Operation   Operation
	Side        string
	FileName    string
	Destination string
	// Error is the engine's failure message; empty on success.
	Error     string
	CreatedAt time.Time
}

// Failed reports whether the entry records a failed operation.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Summary counts entries by outcome.
type Summary struct {
	Uploads   int
	Downloads int
	Removals  int
	Failures  int
}

// Store records and queries transfer history.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// NewStore creates a store on a migrated database.
func NewStore(db *sql.DB, logger *log.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

const entryColumns = `id, session_id, pair, operation, side, file_name, destination, error, created_at`

// Record persists entries in one transaction. A zero CreatedAt is set to now.
func (s *Store) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transfers (
		session_id, pair, operation, side, file_name, destination, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing history insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		m := toEntryModel(e)
		if m.CreatedAt == 0 {
			m.CreatedAt = s.now().UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx,
			m.SessionID, m.Pair, m.Operation, m.Side, m.FileName, m.Destination, m.Error, m.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	s.logger.Debug(log.CatHistory, "Recorded history", "entries", len(entries))
	return nil
}

// Recent returns up to limit entries, newest first. An empty pair matches
// every pair.
func (s *Store) Recent(ctx context.Context, pair string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + entryColumns + ` FROM transfers`
	args := []any{}
	if pair != "" {
		query += ` WHERE pair = ?`
		args = append(args, pair)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		m, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		entries = append(entries, m.toEntry())
	}
	return entries, rows.Err()
}

// Summarize counts entries, optionally for one pair.
func (s *Store) Summarize(ctx context.Context, pair string) (Summary, error) {
	query := `SELECT
		COALESCE(SUM(CASE WHEN operation = 'upload' AND error IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN operation = 'download' AND error IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN operation = 'remove' AND error IS NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM transfers`
	var args []any
	if pair != "" {
		query += ` WHERE pair = ?`
		args = append(args, pair)
	}

	var sum Summary
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&sum.Uploads, &sum.Downloads, &sum.Removals, &sum.Failures,
	); err != nil {
		return Summary{}, fmt.Errorf("summarizing history: %w", err)
	}
	return sum, nil
}

// Prune deletes entries older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfers WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}
