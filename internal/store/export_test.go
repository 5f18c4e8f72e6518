package store

import (
	"bytes"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)

	m1 := msg("m1", RoleUser, "keep this")
	m1.Attachments = []*Attachment{att("a1", "keep.png", []byte{4, 5, 6})}
	m2 := msg("m2", RoleAssistant, "and this")
	m2.Thinking = strPtr("brief deliberation")
	if err := src.SaveConversation("c1", "Root", []*Message{m1, m2}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := src.SaveBranchConversation("b1", "c1", 1, strPtr("what if"), "Branch", []*Message{m1}); err != nil {
		t.Fatalf("SaveBranchConversation failed: %v", err)
	}

	data, err := src.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Exported data is empty")
	}

	dst := newTestStore(t)
	if err := dst.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	// Conversations, lineage included
	root, err := dst.LoadConversation("c1")
	if err != nil {
		t.Fatalf("LoadConversation failed: %v", err)
	}
	if root == nil || root.Title != "Root" {
		t.Fatal("Root conversation not restored")
	}
	branch, _ := dst.LoadConversation("b1")
	if branch == nil || !branch.IsBranch() {
		t.Fatal("Branch lineage not restored")
	}
	if *branch.ParentConversationID != "c1" || *branch.ForkMessageIndex != 1 {
		t.Error("Branch lineage fields wrong after import")
	}
	if branch.ForkNarrative == nil || *branch.ForkNarrative != "what if" {
		t.Error("Fork narrative lost in round trip")
	}

	// Messages in order, optional fields intact
	messages, err := dst.LoadMessages("c1")
	if err != nil {
		t.Fatalf("LoadMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[1].Thinking == nil || *messages[1].Thinking != "brief deliberation" {
		t.Error("Thinking text lost in round trip")
	}

	// Attachment payload carried through
	payload, err := dst.LoadAttachmentData("a1")
	if err != nil {
		t.Fatalf("LoadAttachmentData failed: %v", err)
	}
	if !bytes.Equal(payload, []byte{4, 5, 6}) {
		t.Error("Attachment payload lost in round trip")
	}

	// Imported rows are searchable (index rebuilt via triggers)
	results, err := dst.Search("keep")
	if err != nil {
		t.Fatalf("Search after import failed: %v", err)
	}
	if len(results) == 0 {
		t.Error("Imported messages not searchable")
	}
}

func TestImportReplacesExistingData(t *testing.T) {
	src := newTestStore(t)
	if err := src.SaveConversation("c1", "Only", nil); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	data, err := src.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newTestStore(t)
	if err := dst.SaveConversation("doomed", "Doomed", []*Message{msg("m9", RoleUser, "bye")}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := dst.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	gone, _ := dst.LoadConversation("doomed")
	if gone != nil {
		t.Error("Import did not clear prior contents")
	}
	kept, _ := dst.LoadConversation("c1")
	if kept == nil {
		t.Error("Imported conversation missing")
	}
}

func TestImportEmptyIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveConversation("c1", "Stays", nil); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	if err := s.Import(nil); err != nil {
		t.Fatalf("Import(nil) failed: %v", err)
	}
	c, _ := s.LoadConversation("c1")
	if c == nil {
		t.Error("Empty import wiped the store")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	m := msg("m1", RoleUser, "counted")
	m.Attachments = []*Attachment{att("a1", "one.png", []byte{1})}
	if err := s.SaveConversation("c1", "Stats", []*Message{m, msg("m2", RoleAssistant, "also counted")}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats["conversations"] != 1 {
		t.Errorf("Expected 1 conversation, got %d", stats["conversations"])
	}
	if stats["messages"] != 2 {
		t.Errorf("Expected 2 messages, got %d", stats["messages"])
	}
	if stats["message_attachments"] != 1 {
		t.Errorf("Expected 1 attachment, got %d", stats["message_attachments"])
	}
}
