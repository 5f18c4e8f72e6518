// Package store provides SQLite-backed persistence for chatvault: chat
// conversations, their ordered messages, binary attachments, a full-text
// index kept in sync transactionally, and branch (fork) lineage.
package store

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AttachmentType categorizes an attachment's payload.
type AttachmentType string

const (
	AttachmentTypeImage    AttachmentType = "image"
	AttachmentTypeDocument AttachmentType = "document"
	AttachmentTypeTextFile AttachmentType = "textFile"
)

// Conversation is a chat conversation. Timestamps are fractional epoch
// seconds; createdAt is immutable once set, updatedAt moves on every save
// and title change.
type Conversation struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	CreatedAt float64 `json:"createdAt"`
	UpdatedAt float64 `json:"updatedAt"`

	// Branch lineage, nil for root conversations. Informational only:
	// deleting the parent leaves these pointing at a conversation that
	// no longer exists, and the branch keeps working.
	ParentConversationID *string `json:"parentConversationId,omitempty"`
	ForkMessageIndex     *int    `json:"forkMessageIndex,omitempty"`
	ForkNarrative        *string `json:"forkNarrative,omitempty"`
}

// IsBranch reports whether the conversation was forked from another one.
func (c *Conversation) IsBranch() bool {
	return c.ParentConversationID != nil
}

// Message is a single turn inside a conversation. SortOrder is the message's
// position in the conversation at the most recent save; it defines ordering,
// not any timestamp.
type Message struct {
	ID                   string   `json:"id"`
	ConversationID       string   `json:"conversationId"`
	Role                 Role     `json:"role"`
	Content              string   `json:"content"`
	Metrics              *string  `json:"metrics,omitempty"`
	Thinking             *string  `json:"thinking,omitempty"`
	ThinkingDurationSecs *float64 `json:"thinkingDurationSecs,omitempty"`
	SortOrder            int      `json:"sortOrder"`

	// Attachments as returned by the read paths: metadata only, Data nil.
	Attachments []*Attachment `json:"attachments,omitempty"`
}

// Attachment is a binary payload tied to a message. Data is nil on every
// read path except LoadAttachmentData; on save, a nil Data marks a
// placeholder that is skipped rather than stored, so persisted rows always
// carry their payload.
type Attachment struct {
	ID            string         `json:"id"`
	MessageID     string         `json:"messageId"`
	Type          AttachmentType `json:"type"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mimeType"`
	Data          []byte         `json:"data,omitempty"`
	ExtractedText *string        `json:"extractedText,omitempty"`
	ThumbnailData []byte         `json:"thumbnailData,omitempty"`
	SortOrder     int            `json:"sortOrder"`
}

// AttachmentReference is one row of the flattened attachment listing for a
// conversation, ordered by message position then attachment position. It
// never carries payload bytes.
type AttachmentReference struct {
	AttachmentID     string         `json:"attachmentId"`
	MessageID        string         `json:"messageId"`
	ConversationID   string         `json:"conversationId"`
	Type             AttachmentType `json:"type"`
	Filename         string         `json:"filename"`
	MimeType         string         `json:"mimeType"`
	MessageSortOrder int            `json:"messageSortOrder"`
	SortOrder        int            `json:"sortOrder"`
}

// Storer defines the interface for conversation persistence.
// SQLiteStore is the sole implementation.
type Storer interface {
	// Conversations
	LoadConversations() ([]*Conversation, error)
	LoadConversation(id string) (*Conversation, error)
	SaveConversation(id, title string, messages []*Message) error
	SaveConversationIncremental(id, title string, messages []*Message, existingMessageIDs []string) error
	DeleteConversation(id string) error
	UpdateConversationTitle(id, title string) error

	// Branch lineage
	SaveBranchConversation(id, parentID string, forkMessageIndex int, forkNarrative *string, title string, messages []*Message) error
	UpdateForkNarrative(branchID, narrative string) error

	// Messages
	LoadMessages(conversationID string) ([]*Message, error)
	LoadMessagesPage(conversationID string, limit int, beforeSortOrder *int) ([]*Message, error)

	// Search
	Search(query string) ([]*Conversation, error)

	// Attachments
	SaveAttachments(messageID string, attachments []*Attachment) error
	LoadAttachments(messageID string) ([]*Attachment, error)
	LoadAttachmentReferences(conversationID string) ([]*AttachmentReference, error)
	LoadAttachmentData(attachmentID string) ([]byte, error)
	DeleteAttachments(messageID string) error

	// Counts & maintenance
	CountConversations() (int, error)
	CountMessages(conversationID string) (int, error)
	CheckIntegrity() (bool, error)
	JournalMode() (string, error)
	Stats() (map[string]int, error)

	// Export/Import (whole-store JSON serialization)
	Export() ([]byte, error)
	Import(data []byte) error

	// Lifecycle
	Close() error
}
