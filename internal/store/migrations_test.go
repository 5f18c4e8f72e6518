package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestFreshDatabaseMigratesToLatest(t *testing.T) {
	s := newTestStore(t)

	v, err := s.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion failed: %v", err)
	}
	latest := migrations[len(migrations)-1].Version
	if v != latest {
		t.Errorf("Expected schema version %d, got %d", latest, v)
	}
}

func TestReopenIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.SaveConversation("c1", "Persisted", []*Message{msg("m1", RoleUser, "hello disk")}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s2.Close()

	v, err := s2.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion failed: %v", err)
	}
	latest := migrations[len(migrations)-1].Version
	if v != latest {
		t.Errorf("Reopen changed schema version: %d", v)
	}

	// schema_version rows are appended once per step, not per open
	var stamps int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&stamps); err != nil {
		t.Fatalf("Counting stamps failed: %v", err)
	}
	if stamps != len(migrations) {
		t.Errorf("Expected %d version stamps, got %d", len(migrations), stamps)
	}

	loaded, err := s2.LoadMessages("c1")
	if err != nil {
		t.Fatalf("LoadMessages after reopen failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Content != "hello disk" {
		t.Error("Persisted data lost across reopen")
	}
}

func TestLegacyDatabaseUpgraded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.db")

	// A database from before the version table: base tables only, with
	// data already in them.
	raw, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Opening raw database failed: %v", err)
	}
	if _, err := raw.Exec(migrationBaseTables); err != nil {
		t.Fatalf("Creating legacy schema failed: %v", err)
	}
	if _, err := raw.Exec(`
		INSERT INTO conversations (id, title, createdAt, updatedAt) VALUES ('legacy', 'Legacy', 1.0, 2.0)
	`); err != nil {
		t.Fatalf("Seeding legacy conversation failed: %v", err)
	}
	if _, err := raw.Exec(`
		INSERT INTO messages (id, conversationID, role, content, sortOrder)
		VALUES ('lm1', 'legacy', 'user', 'vintage wisdom', 0)
	`); err != nil {
		t.Fatalf("Seeding legacy message failed: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("Closing raw database failed: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open on legacy database failed: %v", err)
	}
	defer s.Close()

	v, err := s.schemaVersion()
	if err != nil {
		t.Fatalf("schemaVersion failed: %v", err)
	}
	latest := migrations[len(migrations)-1].Version
	if v != latest {
		t.Errorf("Legacy database not upgraded: version %d", v)
	}

	// v1 must not have been re-run: the seeded rows are still there
	c, err := s.LoadConversation("legacy")
	if err != nil {
		t.Fatalf("LoadConversation failed: %v", err)
	}
	if c == nil || c.CreatedAt != 1.0 {
		t.Fatal("Legacy conversation lost or rewritten during upgrade")
	}

	// v2 landed: lineage columns exist
	if err := s.SaveBranchConversation("b1", "legacy", 0, nil, "Branch", nil); err != nil {
		t.Fatalf("Branch save on upgraded database failed: %v", err)
	}

	// v3 landed and rebuilt the index over pre-existing rows
	results, err := s.Search("vintage")
	if err != nil {
		t.Fatalf("Search on upgraded database failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "legacy" {
		t.Errorf("Pre-existing message not indexed by rebuild: %d results", len(results))
	}
}
