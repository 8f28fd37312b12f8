package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateInMemoryDB creates an in-memory SQLite database with an empty
// cursorDiskKV table
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// A second pooled connection would see a different in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	createKVTable(t, db)
	return db
}

// CreateKVDB creates an on-disk database at path with the cursorDiskKV table
// used by the editor's global store. The handle is closed when the test ends.
func CreateKVDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db := openFileDB(t, path)
	createKVTable(t, db)
	return db
}

// CreateItemTableDB creates a per-workspace database at path holding items
func CreateItemTableDB(t *testing.T, path string, items map[string]string) {
	t.Helper()
	db := openFileDB(t, path)
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`); err != nil {
		t.Fatalf("Failed to create ItemTable: %v", err)
	}
	for k, v := range items {
		if _, err := db.Exec("INSERT INTO ItemTable (key, value) VALUES (?, ?)", k, v); err != nil {
			t.Fatalf("Failed to insert item %s: %v", k, err)
		}
	}
}

// InsertKV inserts a row into cursorDiskKV
func InsertKV(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO cursorDiskKV (key, value) VALUES (?, ?)", key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}

// InsertNullKV inserts a row whose value is NULL
func InsertNullKV(t *testing.T, db *sql.DB, key string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO cursorDiskKV (key, value) VALUES (?, NULL)", key); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}

func openFileDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open database %s: %v", path, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createKVTable(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cursorDiskKV (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`); err != nil {
		t.Fatalf("Failed to create cursorDiskKV table: %v", err)
	}
}
