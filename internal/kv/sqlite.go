package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists values in a single SQLite database. Writes are
// serialized through a single connection; reads use a separate pool. It
// implements the Incrementer and Locker capabilities with single-statement
// upserts, which gives the rate limiter a genuinely atomic counter and the
// record store a conditional-write lease.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// OpenSQLite opens (and initializes, if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", path)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &SQLiteStore{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			k             TEXT PRIMARY KEY,
			v             BLOB NOT NULL,
			content_type  TEXT NOT NULL DEFAULT '',
			cache_control TEXT NOT NULL DEFAULT '',
			last_updated  INTEGER NOT NULL DEFAULT 0,
			expires_at    INTEGER
		);

		CREATE TABLE IF NOT EXISTS counters (
			k          TEXT PRIMARY KEY,
			count      INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	var first error
	for _, db := range []*sql.DB{s.readDB, s.writeDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullInt64
	)
	err := s.readDB.QueryRowContext(ctx,
		"SELECT v, expires_at FROM kv WHERE k = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if expiresAt.Valid && expiresAt.Int64 <= time.Now().Unix() {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, meta *Metadata) error {
	if meta == nil {
		meta = &Metadata{}
	}
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO kv (k, v, content_type, cache_control, last_updated, expires_at)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(k) DO UPDATE SET
			v = excluded.v,
			content_type = excluded.content_type,
			cache_control = excluded.cache_control,
			last_updated = excluded.last_updated,
			expires_at = NULL
	`, key, value, meta.ContentType, meta.CacheControl, meta.LastUpdated)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.writeDB.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx,
		"SELECT k FROM kv WHERE k LIKE ? || '%' ORDER BY k", prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Increment implements the Incrementer capability with a single upsert, so
// concurrent requests never lose counts. An expired counter restarts from 1.
func (s *SQLiteStore) Increment(ctx context.Context, key string, expiresAt time.Time) (int64, error) {
	now := time.Now().Unix()

	var count int64
	err := s.writeDB.QueryRowContext(ctx, `
		INSERT INTO counters (k, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT(k) DO UPDATE SET
			count = CASE WHEN counters.expires_at <= ? THEN 1 ELSE counters.count + 1 END,
			expires_at = CASE WHEN counters.expires_at <= ? THEN excluded.expires_at ELSE counters.expires_at END
		RETURNING count
	`, key, expiresAt.Unix(), now, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return count, nil
}

// PutIfAbsent implements the Locker capability. The write wins only when the
// key is absent or holds an expired lease.
func (s *SQLiteStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	expiresAt := time.Now().Add(ttl).Unix()

	res, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO kv (k, v, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(k) DO UPDATE SET
			v = excluded.v,
			expires_at = excluded.expires_at
		WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= ?
	`, key, value, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("conditional write %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
