package cgisession

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per session and rewrites the whole table in a
// single transaction on Save.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.Mutex // Serializes writes to avoid SQLITE_BUSY
	locker   Locker
	maxBytes int
}

// SQLiteConfig holds configuration for the SQLite store.
type SQLiteConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// MaxSessionBytes rejects a row whose encoded values exceed this size. 0 means unlimited.
	MaxSessionBytes int
	// LockPath enables Lock through an advisory lock file. Empty means the
	// store does not provide cross-process locking.
	LockPath string
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{
		DSN:          dsn,
		MaxOpenConns: 16, // Allow concurrent readers (writers are serialized by mutex)
		MaxIdleConns: 16,
	})
}

func NewSQLiteStoreWithConfig(cfg SQLiteConfig) (*SQLiteStore, error) {
	// PRAGMAs go into the DSN so they apply to every pooled connection.
	if !strings.Contains(cfg.DSN, "synchronous") {
		cfg.DSN = appendPragma(cfg.DSN, "synchronous=NORMAL")
	}
	if !strings.Contains(cfg.DSN, "busy_timeout") {
		cfg.DSN = appendPragma(cfg.DSN, "busy_timeout=5000")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		data BLOB
	);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		maxBytes: cfg.MaxSessionBytes,
	}
	if cfg.LockPath != "" {
		store.locker = NewFileLocker(cfg.LockPath)
	}
	return store, nil
}

func appendPragma(dsn, pragma string) string {
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=%s", dsn, separator, pragma)
}

func (s *SQLiteStore) Load(ctx context.Context) (Sessions, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := Sessions{}
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if s.maxBytes > 0 && len(data) > s.maxBytes {
			return nil, ErrStoreTooLarge
		}
		v, err := decodeValues(data)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sessions Sessions) error {
	encoded := make(map[string][]byte, len(sessions))
	for id, v := range sessions {
		b, err := encodeValues(v)
		if err != nil {
			return err
		}
		if s.maxBytes > 0 && len(b) > s.maxBytes {
			return ErrStoreTooLarge
		}
		encoded[id] = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return rewriteTable(ctx, s.db, encoded, "INSERT INTO sessions (id, data) VALUES (?, ?)")
}

// Locker returns the lock file configured through SQLiteConfig.LockPath, or
// nil when the store has none.
func (s *SQLiteStore) Locker() Locker {
	if s.locker == nil {
		return nil
	}
	return s.locker
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rewriteTable replaces every row of the sessions table inside one transaction.
func rewriteTable(ctx context.Context, db *sql.DB, rows map[string][]byte, insert string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}
	defer stmt.Close()

	for id, data := range rows {
		if _, err := stmt.ExecContext(ctx, id, data); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sessions: %w", err)
	}
	return nil
}
