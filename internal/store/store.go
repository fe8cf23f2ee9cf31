// Package store provides database access for the msgscroll mailbox.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Supported database/sql driver names.
const (
	DriverCGo    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// Store provides database operations for the mailbox.
type Store struct {
	db     *sql.DB
	dbPath string
	driver string
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// pureGoPragmas are applied after opening with the pure-Go driver, which does
// not understand the DSN parameters above.
var pureGoPragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA foreign_keys=ON;",
	"PRAGMA busy_timeout=5000;",
}

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Errors from the pure-Go driver are matched on their message text.
func isSQLiteError(err error, substr string) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return strings.Contains(err.Error(), substr)
}

// Open opens or creates the database at the given path using driver, which
// is DriverCGo or DriverPureGo. An empty driver selects DriverCGo.
func Open(dbPath, driver string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if driver == "" {
		driver = DriverCGo
	}
	if driver != DriverCGo && driver != DriverPureGo {
		return nil, fmt.Errorf("unknown sqlite driver %q (want %q or %q)", driver, DriverCGo, DriverPureGo)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath
	if driver == DriverCGo {
		dsn += defaultSQLiteParams
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverPureGo {
		// Pragmas are per connection.
		db.SetMaxOpenConns(1)
		for _, p := range pureGoPragmas {
			if _, err := db.Exec(p); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryInChunks executes a parameterized IN-query in chunks to stay within
// SQLite's parameter limit. queryTemplate must contain a single %s placeholder
// for the comma-separated "?" list. The prefix args are prepended before each
// chunk's args.
func queryInChunks[T any](ctx context.Context, q querier, ids []T, prefixArgs []any, queryTemplate string, fn func(*sql.Rows) error) error {
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		chunk := ids[i:min(i+chunkSize, len(ids))]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		query := fmt.Sprintf(queryTemplate, strings.Join(placeholders, ","))
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}

		for rows.Next() {
			if err := fn(rows); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// execInChunks runs a parameterized IN-statement in chunks and returns the
// total number of affected rows.
func execInChunks[T any](ctx context.Context, tx *sql.Tx, ids []T, prefixArgs []any, stmtTemplate string) (int64, error) {
	const chunkSize = 500
	var total int64
	for i := 0; i < len(ids); i += chunkSize {
		chunk := ids[i:min(i+chunkSize, len(ids))]
		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf(stmtTemplate, strings.Join(placeholders, ",")), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// insertInChunks executes a multi-value INSERT in chunks to stay within SQLite's
// parameter limit (999). The valuesPerRow specifies how many parameters are in
// each VALUES tuple (e.g., 2 for "(?, ?)"). The valueBuilder function
// generates the VALUES placeholders and args for each chunk of indices.
func insertInChunks(ctx context.Context, tx *sql.Tx, totalRows int, valuesPerRow int, queryPrefix string, valueBuilder func(start, end int) ([]string, []any)) error {
	// SQLite default SQLITE_MAX_VARIABLE_NUMBER is 999
	const maxParams = 900
	chunkSize := max(maxParams/valuesPerRow, 1)

	for i := 0; i < totalRows; i += chunkSize {
		end := min(i+chunkSize, totalRows)
		values, args := valueBuilder(i, end)
		query := queryPrefix + strings.Join(values, ",")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// InitSchema initializes the database schema.
// This creates all tables if they don't exist.
func (s *Store) InitSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}
	return nil
}

// Stats holds database statistics.
type Stats struct {
	MessageCount int64
	PersonCount  int64
	TagCount     int64
	DatabaseSize int64
}

// GetStats returns statistics about the database.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM messages", &stats.MessageCount},
		{"SELECT COUNT(*) FROM people", &stats.PersonCount},
		{"SELECT COUNT(DISTINCT tag) FROM message_tags", &stats.TagCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
