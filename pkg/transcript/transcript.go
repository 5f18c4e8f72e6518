// Package transcript renders conversations for export and sharing.
// It carries only the fields a reader of the exchange needs: attachment
// payloads never leave the store, attachments appear by name only.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kittclouds/chatvault/internal/store"
)

// Conversation is the shareable form of one conversation.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt float64   `json:"createdAt"`
	UpdatedAt float64   `json:"updatedAt"`
	Branch    *Branch   `json:"branch,omitempty"`
	Messages  []Message `json:"messages"`
}

// Branch records where a forked conversation split off.
type Branch struct {
	ParentConversationID string `json:"parentConversationID"`
	ForkMessageIndex     int    `json:"forkMessageIndex"`
	ForkNarrative        string `json:"forkNarrative,omitempty"`
}

// Message is one turn of the exchange.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Thinking    string       `json:"thinking,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment names an attached file without its payload.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Type     string `json:"type"`
}

// FromConversation converts a stored conversation and its messages into
// the shareable form.
func FromConversation(c *store.Conversation, messages []*store.Message) *Conversation {
	if c == nil {
		return nil
	}

	t := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]Message, 0, len(messages)),
	}

	if c.IsBranch() {
		b := &Branch{ParentConversationID: *c.ParentConversationID}
		if c.ForkMessageIndex != nil {
			b.ForkMessageIndex = *c.ForkMessageIndex
		}
		if c.ForkNarrative != nil {
			b.ForkNarrative = *c.ForkNarrative
		}
		t.Branch = b
	}

	for _, m := range messages {
		tm := Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Thinking != nil {
			tm.Thinking = *m.Thinking
		}
		for _, a := range m.Attachments {
			tm.Attachments = append(tm.Attachments, Attachment{
				Filename: a.Filename,
				MimeType: a.MimeType,
				Type:     string(a.Type),
			})
		}
		t.Messages = append(t.Messages, tm)
	}

	return t
}

// JSON marshals the shareable form of a conversation.
func JSON(c *store.Conversation, messages []*store.Message) ([]byte, error) {
	return json.MarshalIndent(FromConversation(c, messages), "", "  ")
}

// Markdown renders a conversation as a readable document. It shows the
// visible exchange; thinking text stays in the JSON form only.
func Markdown(c *store.Conversation, messages []*store.Message) string {
	t := FromConversation(c, messages)
	if t == nil {
		return ""
	}

	var b strings.Builder
	title := t.Title
	if title == "" {
		title = "Untitled conversation"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Created %s.\n\n", formatTime(t.CreatedAt))

	if t.Branch != nil {
		fmt.Fprintf(&b, "Branched from conversation %s after message %d.\n\n",
			t.Branch.ParentConversationID, t.Branch.ForkMessageIndex+1)
		if t.Branch.ForkNarrative != "" {
			fmt.Fprintf(&b, "> %s\n\n", t.Branch.ForkNarrative)
		}
	}

	for _, m := range t.Messages {
		fmt.Fprintf(&b, "**%s:**\n\n", roleLabel(m.Role))
		content := strings.TrimRight(m.Content, "\n")
		if content != "" {
			b.WriteString(content)
			b.WriteString("\n\n")
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(&b, "- attachment: %s (%s)\n", a.Filename, a.MimeType)
		}
		if len(m.Attachments) > 0 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case string(store.RoleUser):
		return "User"
	case string(store.RoleAssistant):
		return "Assistant"
	}
	if role == "" {
		return "Unknown"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func formatTime(epochSecs float64) string {
	return time.Unix(int64(epochSecs), 0).UTC().Format("2006-01-02 15:04 UTC")
}
