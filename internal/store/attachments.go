package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Attachment CRUD
// =============================================================================

// SaveAttachments persists a message's attachments in one transaction.
// Entries without payload bytes are placeholders awaiting materialization
// and are skipped, so a stored row always carries its payload.
func (s *SQLiteStore) SaveAttachments(messageID string, attachments []*Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return queryErr("saveAttachments", err)
	}
	defer s.rollback(tx, "saveAttachments")

	if err := saveAttachmentsTx(tx, messageID, attachments); err != nil {
		return queryErr("saveAttachments", err)
	}

	if err := tx.Commit(); err != nil {
		return queryErr("saveAttachments", err)
	}
	return nil
}

// saveAttachmentsTx upserts attachment rows, skipping placeholders.
// sortOrder is the attachment's position in the provided list, so skipped
// placeholders keep their slot for a later save.
func saveAttachmentsTx(tx *sql.Tx, messageID string, attachments []*Attachment) error {
	for i, att := range attachments {
		if len(att.Data) == 0 {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO message_attachments (id, messageID, type, filename, mimeType, data, extractedText, thumbnailData, sortOrder)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				messageID = excluded.messageID,
				type = excluded.type,
				filename = excluded.filename,
				mimeType = excluded.mimeType,
				data = excluded.data,
				extractedText = excluded.extractedText,
				thumbnailData = excluded.thumbnailData,
				sortOrder = excluded.sortOrder
		`, att.ID, messageID, string(att.Type), att.Filename, att.MimeType,
			att.Data, att.ExtractedText, att.ThumbnailData, i)
		if err != nil {
			return fmt.Errorf("save attachment %s: %w", att.ID, err)
		}
	}
	return nil
}

const attachmentMetaColumns = `id, messageID, type, filename, mimeType, extractedText, thumbnailData, sortOrder`

func scanAttachmentMeta(rs rowScanner) (*Attachment, error) {
	var a Attachment
	var attType string
	var extracted sql.NullString
	if err := rs.Scan(&a.ID, &a.MessageID, &attType, &a.Filename, &a.MimeType, &extracted, &a.ThumbnailData, &a.SortOrder); err != nil {
		return nil, fmt.Errorf("scan attachment: %w", err)
	}
	a.Type = AttachmentType(attType)
	if extracted.Valid {
		v := extracted.String
		a.ExtractedText = &v
	}
	return &a, nil
}

// LoadAttachments returns a message's attachments ordered by sortOrder.
// The payload column is never selected: Data is nil on every returned
// value, however large the stored blob. Use LoadAttachmentData for bytes.
func (s *SQLiteStore) LoadAttachments(messageID string) ([]*Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+attachmentMetaColumns+`
		FROM message_attachments WHERE messageID = ? ORDER BY sortOrder ASC
	`, messageID)
	if err != nil {
		return nil, queryErr("loadAttachments", err)
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		a, err := scanAttachmentMeta(rows)
		if err != nil {
			return nil, queryErr("loadAttachments", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("loadAttachments", err)
	}
	return attachments, nil
}

// loadAttachmentsForMessages fills Attachments on each message, metadata
// only. Caller must hold the lock.
func (s *SQLiteStore) loadAttachmentsForMessages(messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]any, len(messages))
	placeholders := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		placeholders[i] = "?"
	}

	rows, err := s.db.Query(`
		SELECT `+attachmentMetaColumns+`
		FROM message_attachments
		WHERE messageID IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY messageID, sortOrder ASC
	`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()

	byMessage := make(map[string][]*Attachment)
	for rows.Next() {
		a, err := scanAttachmentMeta(rows)
		if err != nil {
			return err
		}
		byMessage[a.MessageID] = append(byMessage[a.MessageID], a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range messages {
		m.Attachments = byMessage[m.ID]
	}
	return nil
}

// LoadAttachmentReferences returns every attachment across a conversation as
// a flat list ordered by message position then attachment position, without
// payload bytes.
func (s *SQLiteStore) LoadAttachmentReferences(conversationID string) ([]*AttachmentReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT a.id, a.messageID, m.conversationID, a.type, a.filename, a.mimeType, m.sortOrder, a.sortOrder
		FROM message_attachments a
		JOIN messages m ON m.id = a.messageID
		WHERE m.conversationID = ?
		ORDER BY m.sortOrder ASC, a.sortOrder ASC
	`, conversationID)
	if err != nil {
		return nil, queryErr("loadAttachmentReferences", err)
	}
	defer rows.Close()

	var refs []*AttachmentReference
	for rows.Next() {
		var r AttachmentReference
		var attType string
		if err := rows.Scan(&r.AttachmentID, &r.MessageID, &r.ConversationID, &attType,
			&r.Filename, &r.MimeType, &r.MessageSortOrder, &r.SortOrder); err != nil {
			return nil, queryErr("loadAttachmentReferences", fmt.Errorf("scan reference: %w", err))
		}
		r.Type = AttachmentType(attType)
		refs = append(refs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("loadAttachmentReferences", err)
	}
	return refs, nil
}

// LoadAttachmentData returns an attachment's payload bytes for re-export,
// or nil if the attachment does not exist.
func (s *SQLiteStore) LoadAttachmentData(attachmentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM message_attachments WHERE id = ?
	`, attachmentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryErr("loadAttachmentData", err)
	}
	return data, nil
}

// DeleteAttachments removes all attachments for a message.
func (s *SQLiteStore) DeleteAttachments(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM message_attachments WHERE messageID = ?`, messageID); err != nil {
		return queryErr("deleteAttachments", err)
	}
	return nil
}
