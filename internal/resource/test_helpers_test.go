package resource

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the resource tables
// applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "resource-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE resources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE reader_resources (
			reader_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (reader_id, resource_id)
		) STRICT;
		CREATE TABLE usage_sessions (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL,
			reader_id TEXT NOT NULL,
			card_uid TEXT NOT NULL,
			started_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			ended_at TEXT
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating resource tables: %v", err)
	}

	return db
}

// createTestResource inserts a resource with the given name.
func createTestResource(t *testing.T, repo Repository, name string) *Resource {
	t.Helper()

	res := &Resource{Name: name}
	if err := repo.CreateResource(context.Background(), res); err != nil {
		t.Fatalf("creating test resource %q: %v", name, err)
	}
	return res
}
