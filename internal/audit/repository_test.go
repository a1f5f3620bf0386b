package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT,
		user_id TEXT,
		source TEXT NOT NULL DEFAULT 'api',
		details TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	entry := &Entry{
		Action:     ActionUpdate,
		EntityType: EntityCard,
		EntityID:   "card-1",
		UserID:     "usr-1",
		Details:    map[string]any{"is_disabled": true},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if entry.ID == "" {
		t.Error("Create should generate an ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Create should set CreatedAt")
	}
	if entry.Source != "api" {
		t.Errorf("Source = %q, want default %q", entry.Source, "api")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("List returned total=%d entries=%d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != ActionUpdate || got.EntityType != EntityCard || got.EntityID != "card-1" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if disabled, ok := got.Details["is_disabled"].(bool); !ok || !disabled {
		t.Errorf("details not round-tripped: %+v", got.Details)
	}
}

func TestList_Filters(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seed := []Entry{
		{Action: ActionCreate, EntityType: EntityReader, EntityID: "rdr-1", UserID: "usr-1"},
		{Action: ActionEnroll, EntityType: EntityReader, EntityID: "rdr-1", UserID: "usr-1"},
		{Action: ActionUpdate, EntityType: EntityCard, EntityID: "card-1", UserID: "usr-2"},
	}
	for i := range seed {
		if err := repo.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 3},
		{"by entity type", Filter{EntityType: EntityReader}, 2},
		{"by action", Filter{Action: ActionEnroll}, 1},
		{"by entity id", Filter{EntityType: EntityReader, EntityID: "rdr-1", Action: ActionCreate}, 1},
		{"no match", Filter{EntityType: EntityResource}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("Total = %d, want %d", result.Total, tt.want)
			}
		})
	}
}

func TestList_PaginationAndOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := &Entry{
			Action:     ActionCreate,
			EntityType: EntityUser,
			EntityID:   string(rune('a' + i)),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("Total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(result.Entries))
	}
	// Most recent first, offset skips the newest.
	if result.Entries[0].EntityID != "d" || result.Entries[1].EntityID != "c" {
		t.Errorf("unexpected order: %s, %s", result.Entries[0].EntityID, result.Entries[1].EntityID)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	result, err := repo.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want clamped 0", result.Offset)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected empty slice, got %d entries", len(result.Entries))
	}
}
