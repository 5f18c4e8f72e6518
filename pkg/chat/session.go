package chat

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/kittclouds/chatvault/internal/store"
)

// Session is one open conversation. It holds the working copy of the
// message list and remembers which message IDs are already persisted, so
// Save can tell the store exactly what is new, changed or removed. A
// Session is not safe for concurrent use.
type Session struct {
	svc       *Service
	id        string
	title     string
	messages  []*store.Message
	persisted map[string]bool
}

// Start opens a new conversation. Nothing is written until Save.
func (s *Service) Start(title string) *Session {
	return &Session{
		svc:       s,
		id:        uuid.NewString(),
		title:     title,
		persisted: make(map[string]bool),
	}
}

// Resume opens an existing conversation with its full message history.
func (s *Service) Resume(id string) (*Session, error) {
	conv, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.LoadMessages(id)
	if err != nil {
		return nil, err
	}

	persisted := make(map[string]bool, len(messages))
	for _, m := range messages {
		persisted[m.ID] = true
	}

	return &Session{
		svc:       s,
		id:        conv.ID,
		title:     conv.Title,
		messages:  messages,
		persisted: persisted,
	}, nil
}

// ID returns the conversation ID.
func (s *Session) ID() string { return s.id }

// Title returns the working title, which may still be empty before the
// first save.
func (s *Session) Title() string { return s.title }

// SetTitle overrides the title used on the next save.
func (s *Session) SetTitle(title string) { s.title = title }

// Messages returns the session's working message list. The slice is
// owned by the session.
func (s *Session) Messages() []*store.Message { return s.messages }

// Len returns the number of messages in the working list.
func (s *Session) Len() int { return len(s.messages) }

// =============================================================================
// Appending
// =============================================================================

// MessageOption decorates a message as it is appended.
type MessageOption func(*store.Message)

// WithThinking attaches reasoning text and how long it took.
func WithThinking(text string, durationSecs float64) MessageOption {
	return func(m *store.Message) {
		m.Thinking = &text
		m.ThinkingDurationSecs = &durationSecs
	}
}

// WithMetrics attaches a serialized metrics blob.
func WithMetrics(metricsJSON string) MessageOption {
	return func(m *store.Message) {
		m.Metrics = &metricsJSON
	}
}

// Append adds a message to the end of the working list and returns it.
// The message reaches the store on the next save.
func (s *Session) Append(role store.Role, content string, opts ...MessageOption) *store.Message {
	m := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: s.id,
		Role:           role,
		Content:        content,
		SortOrder:      len(s.messages),
	}
	for _, opt := range opts {
		opt(m)
	}
	s.messages = append(s.messages, m)
	return m
}

// AppendUser adds a user message.
func (s *Session) AppendUser(content string, opts ...MessageOption) *store.Message {
	return s.Append(store.RoleUser, content, opts...)
}

// AppendAssistant adds an assistant message.
func (s *Session) AppendAssistant(content string, opts ...MessageOption) *store.Message {
	return s.Append(store.RoleAssistant, content, opts...)
}

// Truncate keeps the first n messages and drops the rest from the
// working list, for regenerate flows. The next save removes the dropped
// messages from the store.
func (s *Session) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(s.messages) {
		s.messages = s.messages[:n]
	}
}

// =============================================================================
// Attachments
// =============================================================================

// AttachmentOption decorates an attachment as it is added.
type AttachmentOption func(*store.Attachment)

// WithExtractedText stores searchable text pulled out of the file, for
// documents whose raw bytes are not searchable.
func WithExtractedText(text string) AttachmentOption {
	return func(a *store.Attachment) {
		a.ExtractedText = &text
	}
}

// WithThumbnail stores a small preview image alongside the payload.
func WithThumbnail(thumb []byte) AttachmentOption {
	return func(a *store.Attachment) {
		a.ThumbnailData = thumb
	}
}

// Attach adds a file to a message in the working list. The content type
// is sniffed from the payload and the attachment is classified as image,
// textFile or document from it. The payload is cached so an immediate
// preview or branch skips the database read.
func (s *Session) Attach(messageID, filename string, data []byte, opts ...AttachmentOption) (*store.Attachment, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("attach %s: file is empty", filename)
	}
	m := s.findMessage(messageID)
	if m == nil {
		return nil, fmt.Errorf("attach %s: message %s not in session", filename, messageID)
	}

	mime := mimetype.Detect(data).String()
	att := &store.Attachment{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		Type:      classifyAttachment(mime),
		Filename:  filename,
		MimeType:  mime,
		Data:      data,
		SortOrder: len(m.Attachments),
	}
	for _, opt := range opts {
		opt(att)
	}

	m.Attachments = append(m.Attachments, att)
	s.svc.cache.Put(att.ID, data)
	return att, nil
}

// AttachPlaceholder registers an attachment whose payload has not
// arrived yet. The store keeps existing bytes for the ID until a later
// save supplies them, so a placeholder never erases data.
func (s *Session) AttachPlaceholder(messageID, filename, mimeType string, typ store.AttachmentType) (*store.Attachment, error) {
	m := s.findMessage(messageID)
	if m == nil {
		return nil, fmt.Errorf("attach %s: message %s not in session", filename, messageID)
	}

	att := &store.Attachment{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		Type:      typ,
		Filename:  filename,
		MimeType:  mimeType,
		SortOrder: len(m.Attachments),
	}
	m.Attachments = append(m.Attachments, att)
	return att, nil
}

func (s *Session) findMessage(id string) *store.Message {
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func classifyAttachment(mime string) store.AttachmentType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return store.AttachmentTypeImage
	case strings.HasPrefix(mime, "text/"):
		return store.AttachmentTypeTextFile
	default:
		return store.AttachmentTypeDocument
	}
}

// =============================================================================
// Saving
// =============================================================================

// Save writes the working state to the store, inserting new messages,
// removing dropped ones and leaving untouched rows alone. An empty title
// is derived from the first user message before writing.
func (s *Session) Save() error {
	s.ensureTitle()

	existing := make([]string, 0, len(s.persisted))
	for id := range s.persisted {
		existing = append(existing, id)
	}
	if err := s.svc.store.SaveConversationIncremental(s.id, s.title, s.messages, existing); err != nil {
		return err
	}

	s.markPersisted()
	return nil
}

// SaveFull rewrites the whole conversation, renumbering every message to
// its position in the working list. Used when the caller cannot vouch
// for its bookkeeping, at the cost of rewriting unchanged rows.
func (s *Session) SaveFull() error {
	s.ensureTitle()

	// The rewrite replaces attachment rows too, and resumed sessions hold
	// attachment metadata without payloads. Pull the bytes back in first
	// or the rewrite would drop them.
	for _, m := range s.messages {
		for _, att := range m.Attachments {
			if len(att.Data) > 0 {
				continue
			}
			data, err := s.svc.AttachmentData(att.ID)
			if err != nil {
				return fmt.Errorf("materialize attachment %s: %w", att.ID, err)
			}
			att.Data = data
		}
	}

	if err := s.svc.store.SaveConversation(s.id, s.title, s.messages); err != nil {
		return err
	}

	s.markPersisted()
	return nil
}

func (s *Session) ensureTitle() {
	if s.title != "" {
		return
	}
	for _, m := range s.messages {
		if m.Role == store.RoleUser {
			s.title = s.svc.SuggestTitle(m.Content)
			return
		}
	}
	s.title = s.svc.SuggestTitle("")
}

func (s *Session) markPersisted() {
	s.persisted = make(map[string]bool, len(s.messages))
	for _, m := range s.messages {
		s.persisted[m.ID] = true
	}
}
