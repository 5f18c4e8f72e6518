package store

import (
	"fmt"
)

// migration is one schema upgrade step. Steps run in order, each inside its
// own transaction together with its schema_version stamp, so every step runs
// exactly once per database.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{1, "conversation, message and attachment tables", migrationBaseTables},
	{2, "branch lineage columns", migrationLineage},
	{3, "message full-text index", migrationSearchIndex},
}

const migrationBaseTables = `
-- Conversations (lineage columns arrive in v2)
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    createdAt REAL NOT NULL,
    updatedAt REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updatedAt);

-- Messages: sortOrder is list position at the last save, not a timestamp
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversationID TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    metrics TEXT,
    thinking TEXT,
    thinkingDurationSecs REAL,
    sortOrder INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversationID, sortOrder);

-- Attachments: data is never null in storage; payload-less saves are skipped
CREATE TABLE IF NOT EXISTS message_attachments (
    id TEXT PRIMARY KEY,
    messageID TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    filename TEXT NOT NULL,
    mimeType TEXT NOT NULL,
    data BLOB NOT NULL,
    extractedText TEXT,
    thumbnailData BLOB,
    sortOrder INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_message ON message_attachments(messageID, sortOrder);
`

const migrationLineage = `
ALTER TABLE conversations ADD COLUMN parentConversationID TEXT;
ALTER TABLE conversations ADD COLUMN forkMessageIndex INTEGER;
ALTER TABLE conversations ADD COLUMN forkNarrative TEXT;

-- No foreign key: branches must survive deletion of their parent
CREATE INDEX IF NOT EXISTS idx_conversations_parent ON conversations(parentConversationID);
`

const migrationSearchIndex = `
-- External-content FTS index over message text. The triggers keep it in
-- lockstep with the messages table inside whatever transaction touches it.
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content,
    thinking,
    content='messages',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS messages_fts_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content, thinking)
    VALUES (new.rowid, new.content, coalesce(new.thinking, ''));
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content, thinking)
    VALUES ('delete', old.rowid, old.content, coalesce(old.thinking, ''));
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content, thinking)
    VALUES ('delete', old.rowid, old.content, coalesce(old.thinking, ''));
    INSERT INTO messages_fts(rowid, content, thinking)
    VALUES (new.rowid, new.content, coalesce(new.thinking, ''));
END;

-- Index any rows that predate the FTS table
INSERT INTO messages_fts(messages_fts) VALUES ('rebuild');
`

// migrate brings the database up to the current schema version.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if current == 0 {
		current, err = s.stampLegacySchema()
		if err != nil {
			return err
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		s.log.Info().Int("version", m.Version).Str("step", m.Description).Msg("schema migrated")
	}
	return nil
}

func (s *SQLiteStore) schemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer s.rollback(tx, "migrate")

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
		return err
	}
	return tx.Commit()
}

// stampLegacySchema handles databases written before the version table
// existed: it detects how much of the schema is already present and records
// that, so the covered steps are never re-applied. Fresh databases come back
// as version 0 and run everything.
func (s *SQLiteStore) stampLegacySchema() (int, error) {
	hasConversations, err := s.tableExists("conversations")
	if err != nil {
		return 0, err
	}
	if !hasConversations {
		return 0, nil
	}

	version := 1
	var lineage int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('conversations') WHERE name = 'parentConversationID'`).Scan(&lineage)
	if err != nil {
		return 0, fmt.Errorf("inspect legacy schema: %w", err)
	}
	if lineage > 0 {
		version = 2
		hasFTS, err := s.tableExists("messages_fts")
		if err != nil {
			return 0, err
		}
		if hasFTS {
			version = 3
		}
	}

	for v := 1; v <= version; v++ {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
			return 0, fmt.Errorf("stamp legacy schema: %w", err)
		}
	}
	s.log.Info().Int("version", version).Msg("stamped legacy schema")
	return version, nil
}

func (s *SQLiteStore) tableExists(name string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n > 0, nil
}
