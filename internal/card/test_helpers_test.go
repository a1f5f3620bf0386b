package card

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the cards table applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "card-test-*.db")
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
		CREATE TABLE cards (
			id TEXT PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			owner_user_id TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			is_disabled INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating cards table: %v", err)
	}

	return db
}

// createTestCard inserts a card with the given UID and owner.
func createTestCard(t *testing.T, repo Repository, uid, owner string) *Card {
	t.Helper()

	c := &Card{UID: uid, OwnerUserID: owner}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("creating test card %q: %v", uid, err)
	}
	return c
}
