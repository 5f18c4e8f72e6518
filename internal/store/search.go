package store

import (
	"strings"
)

// buildMatchQuery turns free text into an FTS5 prefix query: each token is
// quoted and starred, and tokens are ANDed. Quoting keeps user input from
// being parsed as FTS operators.
func buildMatchQuery(query string) string {
	var terms []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " ")
}

// Search returns the conversations containing at least one message whose
// content or thinking matches every query token as a prefix, most recently
// updated first. A blank query returns all conversations by recency.
func (s *SQLiteStore) Search(query string) ([]*Conversation, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return s.LoadConversations()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT c.id, c.title, c.createdAt, c.updatedAt, c.parentConversationID, c.forkMessageIndex, c.forkNarrative
		FROM conversations c
		JOIN messages m ON m.conversationID = c.id
		JOIN messages_fts ON messages_fts.rowid = m.rowid
		WHERE messages_fts MATCH ?
		ORDER BY c.updatedAt DESC
	`, match)
	if err != nil {
		return nil, queryErr("search", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, queryErr("search", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("search", err)
	}
	return conversations, nil
}
