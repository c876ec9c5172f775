package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// dialect captures the statements that differ between SQL backends.
type dialect struct {
	driver string
	schema string
	upsert string
}

var (
	sqliteDialect = dialect{
		driver: "sqlite",
		schema: `
		CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		upsert: `
		INSERT INTO documents (path, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
	}

	mysqlDialect = dialect{
		driver: "mysql",
		schema: `
		CREATE TABLE IF NOT EXISTS documents (
			path VARCHAR(255) NOT NULL PRIMARY KEY,
			body LONGTEXT NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		upsert: `
		INSERT INTO documents (path, body, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`,
	}
)

// SQLStore keeps documents in a single documents table via database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLiteStore opens (or creates) a SQLite database file.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return newSQLStore(db, sqliteDialect)
}

// NewMySQLStore connects to MySQL using a go-sql-driver DSN.
func NewMySQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open(mysqlDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return newSQLStore(db, mysqlDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if _, err := db.Exec(d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// ReadJSON implements Store.
func (s *SQLStore) ReadJSON(ctx context.Context, p string, out any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	var body string
	err = s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE path = ?`, cleaned).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", cleaned, err)
	}
	return decode(cleaned, []byte(body), out)
}

// WriteJSON implements Store.
func (s *SQLStore) WriteJSON(ctx context.Context, p string, v any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, cleaned, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("write %s: %w", cleaned, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, cleaned); err != nil {
		return fmt.Errorf("delete %s: %w", cleaned, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
