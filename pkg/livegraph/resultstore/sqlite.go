package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"
)

// SQLiteStore persists results in a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	opts   options
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS results (
			key TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (key, sequence)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init result store: %w", err)
		}
	}

	return &SQLiteStore{db: db, opts: buildOptions(opts)}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("put %s: %w", key, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rec := Record{Key: key, Timestamp: time.Now().UTC(), Data: data}
	if rec.Data == nil {
		rec.Data = []byte{}
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM results WHERE key = ?`, key,
	).Scan(&rec.Sequence)
	if err != nil {
		return Record{}, fmt.Errorf("put %s: next sequence: %w", key, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (key, sequence, timestamp, data) VALUES (?, ?, ?, ?)`,
		key, rec.Sequence, rec.Timestamp.Format(time.RFC3339Nano), rec.Data,
	)
	if err != nil {
		return Record{}, fmt.Errorf("put %s: insert: %w", key, err)
	}

	if n := s.opts.retain; n > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM results WHERE key = ? AND sequence <= ?`, key, rec.Sequence-n,
		)
		if err != nil {
			return Record{}, fmt.Errorf("put %s: prune: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("put %s: commit: %w", key, err)
	}
	return copyRecord(rec), nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, key string) (Record, error) {
	recs, err := s.History(ctx, key, 1)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, key string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	// SQLite treats a negative LIMIT as unbounded.
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, timestamp, data FROM results
		WHERE key = ?
		ORDER BY sequence DESC
		LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", key, err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec := Record{Key: key}
		var ts string
		if err := rows.Scan(&rec.Sequence, &ts, &rec.Data); err != nil {
			return nil, fmt.Errorf("history %s: scan: %w", key, err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history %s: %w", key, err)
	}
	return recs, nil
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT key FROM results ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list keys: scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
