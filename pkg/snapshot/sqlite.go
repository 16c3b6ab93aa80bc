package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS freeze_storage (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteBackend persists blobs in a SQLite table. A page limit set with
// WithMaxPageCount makes SQLite itself report SQLITE_FULL, which maps to
// ErrQuotaExceeded.
type SQLiteBackend struct {
	db         *sql.DB
	writeMutex sync.Mutex
}

type sqliteConfig struct {
	busyTimeout  int
	maxPageCount int
}

// SQLiteOption customises OpenSQLite.
type SQLiteOption func(*sqliteConfig)

// WithMaxPageCount sets PRAGMA max_page_count.
func WithMaxPageCount(pages int) SQLiteOption {
	return func(c *sqliteConfig) { c.maxPageCount = pages }
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) SQLiteOption {
	return func(c *sqliteConfig) { c.busyTimeout = ms }
}

// OpenSQLite opens (or creates) a SQLite database at path and prepares the
// storage table. Use ":memory:" for a private in-memory database.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteBackend, error) {
	cfg := sqliteConfig{busyTimeout: 10_000}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps :memory: databases and pragmas consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA journal_mode = WAL",
	}
	if cfg.maxPageCount > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA max_page_count = %d", cfg.maxPageCount))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	backend, err := NewSQLiteBackend(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

// NewSQLiteBackend wraps an open database and creates the storage table.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite db cannot be nil")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create storage table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Load fetches the blob stored under key.
func (b *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, "SELECT value FROM freeze_storage WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite select: %w", err)
	}
	return data, nil
}

// Save upserts the blob under key.
func (b *SQLiteBackend) Save(ctx context.Context, key string, blob []byte) error {
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO freeze_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, blob, time.Now().Unix())
	if err != nil {
		if isSQLiteFull(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("sqlite upsert: %w", err)
	}
	return nil
}

// Delete removes the key.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()

	if _, err := b.db.ExecContext(ctx, "DELETE FROM freeze_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func isSQLiteFull(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code()&0xff == sqlite3.SQLITE_FULL
	}
	return false
}
