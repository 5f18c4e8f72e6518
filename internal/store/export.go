package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// exportVersion identifies the envelope layout for future readers.
const exportVersion = 1

type exportEnvelope struct {
	Version       int             `json:"version"`
	ExportedAt    float64         `json:"exportedAt"`
	Conversations []*Conversation `json:"conversations"`
	Messages      []*Message      `json:"messages"`
	Attachments   []*Attachment   `json:"attachments"`
}

// Export serializes the whole store to a JSON envelope, attachment payloads
// included. This is a portable dump that does not depend on SQLite
// serialization APIs.
func (s *SQLiteStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	envelope := exportEnvelope{
		Version:    exportVersion,
		ExportedAt: now(),
	}

	convRows, err := s.db.Query(`
		SELECT ` + conversationColumns + `
		FROM conversations ORDER BY createdAt ASC
	`)
	if err != nil {
		return nil, queryErr("export", fmt.Errorf("export conversations: %w", err))
	}
	defer convRows.Close()
	for convRows.Next() {
		c, err := scanConversation(convRows)
		if err != nil {
			return nil, queryErr("export", err)
		}
		envelope.Conversations = append(envelope.Conversations, c)
	}
	if err := convRows.Err(); err != nil {
		return nil, queryErr("export", err)
	}

	msgRows, err := s.db.Query(`
		SELECT ` + messageColumns + `
		FROM messages ORDER BY conversationID, sortOrder ASC
	`)
	if err != nil {
		return nil, queryErr("export", fmt.Errorf("export messages: %w", err))
	}
	defer msgRows.Close()
	for msgRows.Next() {
		m, err := scanMessage(msgRows)
		if err != nil {
			return nil, queryErr("export", err)
		}
		envelope.Messages = append(envelope.Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return nil, queryErr("export", err)
	}

	attRows, err := s.db.Query(`
		SELECT id, messageID, type, filename, mimeType, data, extractedText, thumbnailData, sortOrder
		FROM message_attachments ORDER BY messageID, sortOrder ASC
	`)
	if err != nil {
		return nil, queryErr("export", fmt.Errorf("export attachments: %w", err))
	}
	defer attRows.Close()
	for attRows.Next() {
		a, err := scanAttachmentFull(attRows)
		if err != nil {
			return nil, queryErr("export", err)
		}
		envelope.Attachments = append(envelope.Attachments, a)
	}
	if err := attRows.Err(); err != nil {
		return nil, queryErr("export", err)
	}

	return json.Marshal(envelope)
}

func scanAttachmentFull(rs rowScanner) (*Attachment, error) {
	var a Attachment
	var attType string
	var extracted sql.NullString
	if err := rs.Scan(&a.ID, &a.MessageID, &attType, &a.Filename, &a.MimeType, &a.Data, &extracted, &a.ThumbnailData, &a.SortOrder); err != nil {
		return nil, fmt.Errorf("scan attachment: %w", err)
	}
	a.Type = AttachmentType(attType)
	if extracted.Valid {
		v := extracted.String
		a.ExtractedText = &v
	}
	return &a, nil
}

// Import replaces the store's contents with an exported envelope. Everything
// happens in one transaction: a failed import leaves the store as it was.
func (s *SQLiteStore) Import(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	var envelope exportEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return queryErr("import", fmt.Errorf("import unmarshal: %w", err))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return queryErr("import", err)
	}
	defer s.rollback(tx, "import")

	// Clear children first
	for _, table := range []string{"message_attachments", "messages", "conversations"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return queryErr("import", fmt.Errorf("clear %s: %w", table, err))
		}
	}

	for _, c := range envelope.Conversations {
		_, err := tx.Exec(`
			INSERT INTO conversations (id, title, createdAt, updatedAt, parentConversationID, forkMessageIndex, forkNarrative)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.Title, c.CreatedAt, c.UpdatedAt, c.ParentConversationID, c.ForkMessageIndex, c.ForkNarrative)
		if err != nil {
			return queryErr("import", fmt.Errorf("import conversation %s: %w", c.ID, err))
		}
	}

	for _, m := range envelope.Messages {
		if err := insertMessageTx(tx, m.ConversationID, m, m.SortOrder); err != nil {
			return queryErr("import", err)
		}
	}

	for _, a := range envelope.Attachments {
		_, err := tx.Exec(`
			INSERT INTO message_attachments (id, messageID, type, filename, mimeType, data, extractedText, thumbnailData, sortOrder)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.MessageID, string(a.Type), a.Filename, a.MimeType,
			a.Data, a.ExtractedText, a.ThumbnailData, a.SortOrder)
		if err != nil {
			return queryErr("import", fmt.Errorf("import attachment %s: %w", a.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return queryErr("import", err)
	}
	return nil
}

// Stats reports row counts per table.
func (s *SQLiteStore) Stats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, table := range []string{"conversations", "messages", "message_attachments"} {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
			return nil, queryErr("stats", err)
		}
		stats[table] = count
	}
	return stats, nil
}
