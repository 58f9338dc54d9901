package drop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
)

// SQLiteStore keeps drops in a SQLite database so they survive restarts
// within their short lifetime.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and runs the
// schema migration. Call Close when done.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "codedrop.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

// Migrate creates the schema if needed.
func (s *SQLiteStore) Migrate(ctx context.Context) (err error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drops (
			code TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS drops_expires_at ON drops(expires_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Put(ctx context.Context, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO drops(code, value, expires_at) VALUES(?, ?, ?)`,
		e.Code, data, e.ExpiresAt.UnixMilli())
	if isConstraintError(err) {
		return ErrCodeTaken
	}
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, code string) (*Entry, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT value FROM drops WHERE code = ?`, code)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeEntry(data)
}

func (s *SQLiteStore) Update(ctx context.Context, e *Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE drops SET value = ?, expires_at = ? WHERE code = ?`,
		data, e.ExpiresAt.UnixMilli(), e.Code)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drops WHERE code = ?`, code)
	return err
}

func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drops WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close releases the underlying DB connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
