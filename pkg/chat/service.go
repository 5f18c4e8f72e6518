// Package chat is the application layer over the conversation store. A
// Service answers conversation-level questions (listing, search, branch
// lineage, transcripts) and a Session tracks one open conversation,
// remembering which messages are already persisted so saves only touch
// what changed.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/orsinium-labs/stopwords"
	"github.com/rs/zerolog"

	"github.com/kittclouds/chatvault/internal/store"
	"github.com/kittclouds/chatvault/pkg/blobcache"
	"github.com/kittclouds/chatvault/pkg/highlight"
	"github.com/kittclouds/chatvault/pkg/transcript"
)

// ErrNotFound is returned when a conversation ID does not exist.
var ErrNotFound = errors.New("conversation not found")

const (
	titleMaxRunes = 48
	titleMaxWords = 6
)

// Service exposes conversation operations on top of a store.
type Service struct {
	store store.Storer
	cache *blobcache.Cache
	stop  *stopwords.Stopwords
	log   zerolog.Logger
}

// New creates a chat service. The logger may be a zero zerolog.Logger to
// disable logging.
func New(st store.Storer, logger zerolog.Logger) *Service {
	return &Service{
		store: st,
		cache: blobcache.New(0),
		stop:  stopwords.MustGet("en"),
		log:   logger.With().Str("component", "chat").Logger(),
	}
}

// Store returns the underlying store.
func (s *Service) Store() store.Storer {
	return s.store
}

// =============================================================================
// Conversation Management
// =============================================================================

// Conversations lists every conversation, most recently updated first.
func (s *Service) Conversations() ([]*store.Conversation, error) {
	return s.store.LoadConversations()
}

// Get returns a conversation by ID, or ErrNotFound.
func (s *Service) Get(id string) (*store.Conversation, error) {
	conv, err := s.store.LoadConversation(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return conv, nil
}

// Delete removes a conversation with its messages and attachments.
// Branches of the conversation survive with their lineage fields intact.
func (s *Service) Delete(id string) error {
	return s.store.DeleteConversation(id)
}

// Rename sets a conversation title and bumps its recency.
func (s *Service) Rename(id, title string) error {
	return s.store.UpdateConversationTitle(id, title)
}

// Messages returns all messages of a conversation in display order.
func (s *Service) Messages(conversationID string) ([]*store.Message, error) {
	return s.store.LoadMessages(conversationID)
}

// MessagesPage returns up to limit messages ending just before the given
// sort order, oldest first. A nil cursor starts from the newest message.
func (s *Service) MessagesPage(conversationID string, limit int, beforeSortOrder *int) ([]*store.Message, error) {
	return s.store.LoadMessagesPage(conversationID, limit, beforeSortOrder)
}

// =============================================================================
// Attachments
// =============================================================================

// Attachments returns the attachment metadata of a message, without
// payload bytes.
func (s *Service) Attachments(messageID string) ([]*store.Attachment, error) {
	return s.store.LoadAttachments(messageID)
}

// AttachmentRefs lists every attachment of a conversation in display
// order, for gallery style views.
func (s *Service) AttachmentRefs(conversationID string) ([]*store.AttachmentReference, error) {
	return s.store.LoadAttachmentReferences(conversationID)
}

// AttachmentData returns an attachment payload, reading through an
// in-memory cache so repeated views of the same file skip the database.
// Returns nil for an unknown attachment ID.
func (s *Service) AttachmentData(attachmentID string) ([]byte, error) {
	if data := s.cache.Get(attachmentID); data != nil {
		return data, nil
	}
	data, err := s.store.LoadAttachmentData(attachmentID)
	if err != nil || data == nil {
		return nil, err
	}
	s.cache.Put(attachmentID, data)
	s.log.Debug().Str("attachment", attachmentID).Int("bytes", len(data)).Msg("cached attachment payload")
	return data, nil
}

// =============================================================================
// Search
// =============================================================================

// SearchResult pairs a matching conversation with a snippet of the first
// matching message. Span offsets index the snippet string.
type SearchResult struct {
	Conversation *store.Conversation `json:"conversation"`
	MessageID    string              `json:"messageID,omitempty"`
	Snippet      string              `json:"snippet,omitempty"`
	Spans        []highlight.Span    `json:"spans,omitempty"`
}

// Search finds conversations whose messages match the query terms as
// word prefixes and decorates each hit with a highlighted snippet. A
// blank query lists all conversations by recency, without snippets.
func (s *Service) Search(query string) ([]SearchResult, error) {
	convs, err := s.store.Search(query)
	if err != nil {
		return nil, err
	}

	h, err := highlight.New(query)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(convs))
	for _, conv := range convs {
		res := SearchResult{Conversation: conv}
		if len(h.Terms()) > 0 {
			if err := s.fillSnippet(&res, h); err != nil {
				return nil, err
			}
		}
		results = append(results, res)
	}

	s.log.Debug().Str("query", query).Int("hits", len(results)).Msg("search")
	return results, nil
}

// fillSnippet locates the first message of the conversation that carries
// a query term, checking visible content before thinking text.
func (s *Service) fillSnippet(res *SearchResult, h *highlight.Highlighter) error {
	messages, err := s.store.LoadMessages(res.Conversation.ID)
	if err != nil {
		return err
	}

	for _, m := range messages {
		text := m.Content
		spans := h.Spans(text)
		if len(spans) == 0 && m.Thinking != nil {
			text = *m.Thinking
			spans = h.Spans(text)
		}
		if len(spans) == 0 {
			continue
		}
		res.MessageID = m.ID
		res.Snippet, res.Spans = highlight.Snippet(text, spans, 0)
		return nil
	}
	return nil
}

// =============================================================================
// Branching
// =============================================================================

// Branch forks a saved conversation into a new one that copies the
// parent's messages up to and including forkMessageIndex. Attachment
// payloads are materialized from the parent so the branch owns full
// copies of its files. An empty title derives one from the parent. The
// returned session is resumed on the new branch.
func (s *Service) Branch(parentID string, forkMessageIndex int, narrative *string, title string) (*Session, error) {
	parent, err := s.store.LoadConversation(parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("branch parent %s: %w", parentID, ErrNotFound)
	}

	messages, err := s.store.LoadMessages(parentID)
	if err != nil {
		return nil, err
	}
	if forkMessageIndex < 0 || forkMessageIndex >= len(messages) {
		return nil, fmt.Errorf("fork message index %d out of range, conversation has %d messages",
			forkMessageIndex, len(messages))
	}

	subset := messages[:forkMessageIndex+1]
	for _, m := range subset {
		for _, att := range m.Attachments {
			if len(att.Data) > 0 {
				continue
			}
			data, err := s.AttachmentData(att.ID)
			if err != nil {
				return nil, fmt.Errorf("materialize attachment %s: %w", att.ID, err)
			}
			att.Data = data
		}
	}

	if title == "" {
		if parent.Title != "" {
			title = "Branch of " + parent.Title
		} else {
			title = "Branch"
		}
	}

	branchID := uuid.NewString()
	if err := s.store.SaveBranchConversation(branchID, parentID, forkMessageIndex, narrative, title, subset); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("parent", parentID).
		Str("branch", branchID).
		Int("messages", len(subset)).
		Msg("created branch")

	return s.Resume(branchID)
}

// SetForkNarrative updates the stored reason a branch was created,
// without touching its recency.
func (s *Service) SetForkNarrative(branchID, narrative string) error {
	return s.store.UpdateForkNarrative(branchID, narrative)
}

// =============================================================================
// Transcripts
// =============================================================================

// TranscriptJSON renders a conversation as shareable JSON, with
// attachments listed by name only.
func (s *Service) TranscriptJSON(conversationID string) ([]byte, error) {
	conv, messages, err := s.loadForTranscript(conversationID)
	if err != nil {
		return nil, err
	}
	return transcript.JSON(conv, messages)
}

// TranscriptMarkdown renders a conversation as a Markdown document.
func (s *Service) TranscriptMarkdown(conversationID string) (string, error) {
	conv, messages, err := s.loadForTranscript(conversationID)
	if err != nil {
		return "", err
	}
	return transcript.Markdown(conv, messages), nil
}

func (s *Service) loadForTranscript(conversationID string) (*store.Conversation, []*store.Message, error) {
	conv, err := s.Get(conversationID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.store.LoadMessages(conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

// =============================================================================
// Titles
// =============================================================================

// SuggestTitle derives a short title from the leading meaningful words
// of content, skipping English stopwords. Falls back to the text as
// written when every word is a stopword, and to a fixed default when
// content is blank.
func (s *Service) SuggestTitle(content string) string {
	words := strings.Fields(content)

	picked := make([]string, 0, titleMaxWords)
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}`*_")
		if w == "" || s.stop.Contains(strings.ToLower(w)) {
			continue
		}
		picked = append(picked, w)
		if len(picked) == titleMaxWords {
			break
		}
	}
	if len(picked) == 0 {
		for _, w := range words {
			picked = append(picked, w)
			if len(picked) == titleMaxWords {
				break
			}
		}
	}

	title := strings.Join(picked, " ")
	if title == "" {
		return "New conversation"
	}
	if utf8.RuneCountInString(title) > titleMaxRunes {
		runes := []rune(title)
		title = strings.TrimRight(string(runes[:titleMaxRunes]), " ") + "…"
	}

	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}
