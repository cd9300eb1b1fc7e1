package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "order_lifecycle/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS kv_list (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   TEXT NOT NULL,
	value BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_list_key ON kv_list(key);
CREATE TABLE IF NOT EXISTS kv_set (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	PRIMARY KEY (key, member)
);
`

// SQLiteStore implements core.IKeyedStore on a local SQLite database.
// Suitable for single-node deployments where workers share one host.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for crash recovery
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	if expiresAt != 0 && expiresAt <= time.Now().UnixNano() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return nil, apperrors.ErrKeyNotFound
	}

	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.SetWithTTL(ctx, key, value, 0)
}

func (s *SQLiteStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, deadline(ttl))
	if err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// SetIfAbsent claims the key atomically. Expired rows are purged inside the
// same transaction so a stale claim cannot block a new one.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND expires_at != 0 AND expires_at <= ?`,
		key, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to purge expired key: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		key, value, deadline(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to claim key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit claim: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	for _, q := range []string{
		`DELETE FROM kv WHERE key = ?`,
		`DELETE FROM kv_list WHERE key = ?`,
		`DELETE FROM kv_set WHERE key = ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, key); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Push(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_list (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to push to list: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, key string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM kv_list WHERE key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read list: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan list row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddToSet(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_set (key, member) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		key, member)
	if err != nil {
		return fmt.Errorf("failed to add set member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsMember(ctx context.Context, key, member string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM kv_set WHERE key = ? AND member = ?`, key, member).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check set member: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}
