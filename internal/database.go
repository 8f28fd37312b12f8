package internal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

// OpenDatabase opens a SQLite database in read-only mode
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := "file:" + (&url.URL{Path: path}).EscapedPath() + "?mode=ro&_pragma=busy_timeout(2000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// OpenDatabaseWithRetry opens path read-only, retrying while another process
// holds a lock on it
func OpenDatabaseWithRetry(ctx context.Context, path string, policy RetryPolicy) (*sql.DB, error) {
	var db *sql.DB
	err := policy.Do(ctx, func(ctx context.Context) error {
		var openErr error
		db, openErr = OpenDatabase(path)
		return openErr
	}, RetryTransient)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	return db, nil
}

// EscapeLike escapes LIKE wildcards in s for use with ESCAPE '\'
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// QueryCursorDiskKV returns the non-null rows of cursorDiskKV whose key
// starts with prefix
func QueryCursorDiskKV(ctx context.Context, db *sql.DB, prefix string) ([]KeyValuePair, error) {
	query := `SELECT key, CAST(value AS TEXT) FROM cursorDiskKV WHERE key LIKE ? ESCAPE '\' AND value IS NOT NULL`
	rows, err := db.QueryContext(ctx, query, EscapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var pairs []KeyValuePair
	for rows.Next() {
		var pair KeyValuePair
		var value sql.NullString
		if err := rows.Scan(&pair.Key, &value); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if value.Valid {
			pair.Value = value.String
			pairs = append(pairs, pair)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return pairs, nil
}

// QueryItemTable returns the value stored under key in ItemTable. The bool
// is false when the key is absent.
func QueryItemTable(ctx context.Context, db *sql.DB, key string) (string, bool, error) {
	var value sql.NullString
	err := db.QueryRowContext(ctx, "SELECT CAST(value AS TEXT) FROM ItemTable WHERE key = ? LIMIT 1", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query failed: %w", err)
	}
	if !value.Valid {
		return "", false, nil
	}
	return value.String, true, nil
}

// KeyValuePair represents a key-value pair from cursorDiskKV
type KeyValuePair struct {
	Key   string
	Value string
}
