package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/rs/zerolog"
)

// SQLiteStore is the SQLite-backed conversation store. Every operation
// serializes through one RWMutex over a single pooled connection, so
// concurrent callers queue rather than interleave statements; readers still
// see only committed state thanks to WAL snapshots.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	log zerolog.Logger
}

// Config controls how a store is opened.
type Config struct {
	// Path is the database location. ":memory:" keeps the store in RAM.
	Path string
	// BusyTimeout bounds how long a statement waits on a locked database.
	BusyTimeout time.Duration
	// Logger receives migration progress and rollback failures.
	Logger zerolog.Logger
}

// DefaultConfig returns the standard configuration for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

// Open opens or creates the store at path and applies pending migrations.
func Open(path string) (*SQLiteStore, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenInMemory opens a private in-memory store.
func OpenInMemory() (*SQLiteStore, error) {
	return OpenWithConfig(DefaultConfig(":memory:"))
}

// OpenWithConfig opens the store described by cfg. On any failure the
// half-built handle is closed and never exposed.
func OpenWithConfig(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, openErr("open", errors.New("empty database path"))
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, openErr("open", err)
	}

	// One connection: the pool would otherwise hand pragmas-less
	// connections to callers, and :memory: databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, openErr("pragma", err)
		}
	}

	s := &SQLiteStore{db: db, log: cfg.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, openErr("migrate", err)
	}

	s.log.Debug().Str("path", cfg.Path).Msg("store opened")
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rollback reverts tx without disturbing the error that triggered it.
// sql.ErrTxDone means the transaction already committed; anything else is
// logged, never returned.
func (s *SQLiteStore) rollback(tx *sql.Tx, op string) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		s.log.Error().Err(err).Str("op", op).Msg("rollback failed")
	}
}

// now returns the current time as fractional epoch seconds, matching the
// REAL timestamp columns.
func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// Conversation CRUD
// =============================================================================

const conversationColumns = `id, title, createdAt, updatedAt, parentConversationID, forkMessageIndex, forkNarrative`

func scanConversation(rs rowScanner) (*Conversation, error) {
	var c Conversation
	var parentID, narrative sql.NullString
	var forkIndex sql.NullInt64
	if err := rs.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &parentID, &forkIndex, &narrative); err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if parentID.Valid {
		v := parentID.String
		c.ParentConversationID = &v
	}
	if forkIndex.Valid {
		v := int(forkIndex.Int64)
		c.ForkMessageIndex = &v
	}
	if narrative.Valid {
		v := narrative.String
		c.ForkNarrative = &v
	}
	return &c, nil
}

// LoadConversations returns every conversation, most recently updated first.
func (s *SQLiteStore) LoadConversations() ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT ` + conversationColumns + `
		FROM conversations ORDER BY updatedAt DESC
	`)
	if err != nil {
		return nil, queryErr("loadConversations", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, queryErr("loadConversations", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("loadConversations", err)
	}
	return conversations, nil
}

// LoadConversation retrieves one conversation, or nil if the id is unknown.
func (s *SQLiteStore) LoadConversation(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = ?
	`, id)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryErr("loadConversation", err)
	}
	return c, nil
}

// SaveConversation replaces the entire message list of a conversation in one
// transaction: the conversation row is upserted (createdAt preserved on
// conflict), every existing message is dropped, and the provided list is
// re-inserted with sortOrder equal to list position.
func (s *SQLiteStore) SaveConversation(id, title string, messages []*Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return queryErr("saveConversation", err)
	}
	defer s.rollback(tx, "saveConversation")

	if err := upsertConversationTx(tx, id, title, now()); err != nil {
		return queryErr("saveConversation", err)
	}
	if err := deleteConversationMessagesTx(tx, id); err != nil {
		return queryErr("saveConversation", err)
	}
	for i, msg := range messages {
		if err := insertMessageTx(tx, id, msg, i); err != nil {
			return queryErr("saveConversation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return queryErr("saveConversation", err)
	}
	return nil
}

// SaveConversationIncremental writes only the difference between the
// caller's message list and what it believes is already persisted:
// messages in existingMessageIDs but not in the list are deleted, messages
// not in existingMessageIDs are inserted at their list position, and rows
// for unchanged messages are left untouched.
//
// Correctness depends on existingMessageIDs being accurate; the store does
// not verify it against the database. A stale set cannot corrupt rows, but
// sortOrder values of untouched messages may lag their true list position.
func (s *SQLiteStore) SaveConversationIncremental(id, title string, messages []*Message, existingMessageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(existingMessageIDs))
	for _, mid := range existingMessageIDs {
		existing[mid] = true
	}
	current := make(map[string]bool, len(messages))
	for _, msg := range messages {
		current[msg.ID] = true
	}

	tx, err := s.db.Begin()
	if err != nil {
		return queryErr("saveConversationIncremental", err)
	}
	defer s.rollback(tx, "saveConversationIncremental")

	if err := upsertConversationTx(tx, id, title, now()); err != nil {
		return queryErr("saveConversationIncremental", err)
	}

	// removed = existing - current
	for _, mid := range existingMessageIDs {
		if current[mid] {
			continue
		}
		if err := deleteMessageTx(tx, mid); err != nil {
			return queryErr("saveConversationIncremental", err)
		}
	}

	for i, msg := range messages {
		if existing[msg.ID] {
			// Row stays as is; new attachments on it still get saved
			// (payload-less ones are placeholders and are skipped).
			if len(msg.Attachments) > 0 {
				if err := saveAttachmentsTx(tx, msg.ID, msg.Attachments); err != nil {
					return queryErr("saveConversationIncremental", err)
				}
			}
			continue
		}
		if err := insertMessageTx(tx, id, msg, i); err != nil {
			return queryErr("saveConversationIncremental", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return queryErr("saveConversationIncremental", err)
	}
	return nil
}

// DeleteConversation removes a conversation with all of its messages and
// attachments. Branches that reference it as parent are not touched.
func (s *SQLiteStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return queryErr("deleteConversation", err)
	}
	defer s.rollback(tx, "deleteConversation")

	if err := deleteConversationMessagesTx(tx, id); err != nil {
		return queryErr("deleteConversation", err)
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return queryErr("deleteConversation", fmt.Errorf("delete conversation: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return queryErr("deleteConversation", err)
	}
	return nil
}

// UpdateConversationTitle renames a conversation and bumps updatedAt.
// Message rows are not touched.
func (s *SQLiteStore) UpdateConversationTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE conversations SET title = ?, updatedAt = ? WHERE id = ?
	`, title, now(), id)
	if err != nil {
		return queryErr("updateConversationTitle", err)
	}
	return nil
}

// =============================================================================
// Branch lineage
// =============================================================================

// SaveBranchConversation creates a conversation forked from parentID at
// forkMessageIndex. The branch's messages are written under freshly minted
// IDs so nothing is shared with the parent: lineage is informational only,
// and deleting the parent later leaves the branch fully loadable.
func (s *SQLiteStore) SaveBranchConversation(id, parentID string, forkMessageIndex int, forkNarrative *string, title string, messages []*Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return queryErr("saveBranchConversation", err)
	}
	defer s.rollback(tx, "saveBranchConversation")

	ts := now()
	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, createdAt, updatedAt, parentConversationID, forkMessageIndex, forkNarrative)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updatedAt = excluded.updatedAt,
			parentConversationID = excluded.parentConversationID,
			forkMessageIndex = excluded.forkMessageIndex,
			forkNarrative = excluded.forkNarrative
	`, id, title, ts, ts, parentID, forkMessageIndex, forkNarrative)
	if err != nil {
		return queryErr("saveBranchConversation", fmt.Errorf("insert branch: %w", err))
	}

	for i, msg := range messages {
		if err := insertMessageTx(tx, id, branchCopy(msg), i); err != nil {
			return queryErr("saveBranchConversation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return queryErr("saveBranchConversation", err)
	}
	return nil
}

// UpdateForkNarrative fills in a branch's narrative after the fact, e.g.
// once an external summarization step finishes. updatedAt is deliberately
// left alone: a background write should not reorder the conversation list.
func (s *SQLiteStore) UpdateForkNarrative(branchID, narrative string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE conversations SET forkNarrative = ? WHERE id = ?
	`, narrative, branchID)
	if err != nil {
		return queryErr("updateForkNarrative", err)
	}
	return nil
}

// branchCopy clones a message under fresh identities, attachments included,
// so a branch never shares row IDs with its parent.
func branchCopy(msg *Message) *Message {
	out := *msg
	out.ID = uuid.NewString()
	if len(msg.Attachments) > 0 {
		out.Attachments = make([]*Attachment, len(msg.Attachments))
		for i, att := range msg.Attachments {
			a := *att
			a.ID = uuid.NewString()
			out.Attachments[i] = &a
		}
	}
	return &out
}

// =============================================================================
// Message writes (shared transaction helpers)
// =============================================================================

// insertMessageTx is the one place a message row is written. The FTS
// triggers index the row inside the same transaction, and any attachments
// carried on the message are persisted with it.
func insertMessageTx(tx *sql.Tx, conversationID string, msg *Message, sortOrder int) error {
	_, err := tx.Exec(`
		INSERT INTO messages (id, conversationID, role, content, metrics, thinking, thinkingDurationSecs, sortOrder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, conversationID, string(msg.Role), msg.Content, msg.Metrics, msg.Thinking, msg.ThinkingDurationSecs, sortOrder)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	if len(msg.Attachments) > 0 {
		if err := saveAttachmentsTx(tx, msg.ID, msg.Attachments); err != nil {
			return err
		}
	}
	return nil
}

func upsertConversationTx(tx *sql.Tx, id, title string, ts float64) error {
	_, err := tx.Exec(`
		INSERT INTO conversations (id, title, createdAt, updatedAt)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updatedAt = excluded.updatedAt
	`, id, title, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func deleteMessageTx(tx *sql.Tx, messageID string) error {
	if _, err := tx.Exec(`DELETE FROM message_attachments WHERE messageID = ?`, messageID); err != nil {
		return fmt.Errorf("delete attachments for %s: %w", messageID, err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

func deleteConversationMessagesTx(tx *sql.Tx, conversationID string) error {
	_, err := tx.Exec(`
		DELETE FROM message_attachments
		WHERE messageID IN (SELECT id FROM messages WHERE conversationID = ?)
	`, conversationID)
	if err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE conversationID = ?`, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// =============================================================================
// Message reads
// =============================================================================

const messageColumns = `id, conversationID, role, content, metrics, thinking, thinkingDurationSecs, sortOrder`

func scanMessage(rs rowScanner) (*Message, error) {
	var m Message
	var role string
	var metrics, thinking sql.NullString
	var thinkingSecs sql.NullFloat64
	if err := rs.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &metrics, &thinking, &thinkingSecs, &m.SortOrder); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Role = Role(role)
	if metrics.Valid {
		v := metrics.String
		m.Metrics = &v
	}
	if thinking.Valid {
		v := thinking.String
		m.Thinking = &v
	}
	if thinkingSecs.Valid {
		v := thinkingSecs.Float64
		m.ThinkingDurationSecs = &v
	}
	return &m, nil
}

// queryMessages runs a message query. Caller must hold the lock.
func (s *SQLiteStore) queryMessages(query string, args ...any) ([]*Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// LoadMessages returns a conversation's messages ordered by sortOrder, each
// with attachment metadata attached (never payload bytes).
func (s *SQLiteStore) LoadMessages(conversationID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, err := s.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages WHERE conversationID = ? ORDER BY sortOrder ASC
	`, conversationID)
	if err != nil {
		return nil, queryErr("loadMessages", err)
	}
	if err := s.loadAttachmentsForMessages(messages); err != nil {
		return nil, queryErr("loadMessages", err)
	}
	return messages, nil
}

// LoadMessagesPage pages backward through a conversation. With a nil cursor
// it returns the limit most recent messages; with a cursor it returns up to
// limit messages strictly older than beforeSortOrder. Results are ascending
// either way, ready to prepend to a message list.
func (s *SQLiteStore) LoadMessagesPage(conversationID string, limit int, beforeSortOrder *int) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []*Message
	var err error

	if beforeSortOrder != nil {
		messages, err = s.queryMessages(`
			SELECT `+messageColumns+`
			FROM messages WHERE conversationID = ? AND sortOrder < ?
			ORDER BY sortOrder DESC LIMIT ?
		`, conversationID, *beforeSortOrder, limit)
	} else {
		messages, err = s.queryMessages(`
			SELECT `+messageColumns+`
			FROM messages WHERE conversationID = ?
			ORDER BY sortOrder DESC LIMIT ?
		`, conversationID, limit)
	}
	if err != nil {
		return nil, queryErr("loadMessagesPage", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if err := s.loadAttachmentsForMessages(messages); err != nil {
		return nil, queryErr("loadMessagesPage", err)
	}
	return messages, nil
}

// =============================================================================
// Counts & maintenance
// =============================================================================

// CountConversations returns the number of stored conversations.
func (s *SQLiteStore) CountConversations() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return 0, queryErr("countConversations", err)
	}
	return count, nil
}

// CountMessages returns the number of messages in a conversation, or across
// the whole store when conversationID is empty.
func (s *SQLiteStore) CountMessages(conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var err error
	if conversationID != "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversationID = ?`, conversationID).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	}
	if err != nil {
		return 0, queryErr("countMessages", err)
	}
	return count, nil
}

// CheckIntegrity runs SQLite's integrity check and reports whether the
// database is sound.
func (s *SQLiteStore) CheckIntegrity() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result string
	if err := s.db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return false, queryErr("checkIntegrity", err)
	}
	return result == "ok", nil
}

// JournalMode reports the active journal mode ("wal" for file databases,
// "memory" for in-memory ones).
func (s *SQLiteStore) JournalMode() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mode string
	if err := s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		return "", queryErr("journalMode", err)
	}
	return mode, nil
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
