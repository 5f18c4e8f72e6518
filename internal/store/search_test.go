package store

import (
	"testing"
	"time"
)

func TestSearchPrefix(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Biology", []*Message{
		msg("m1", RoleUser, "Explain photosynthesis to me"),
		msg("m2", RoleAssistant, "It converts light into sugar."),
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	results, err := s.Search("photo")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("Expected [c1] for prefix query, got %d results", len(results))
	}

	results, err = s.Search("xyz123")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results for xyz123, got %d", len(results))
	}
}

func TestSearchTokensAreANDed(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Energy", []*Message{
		msg("m1", RoleUser, "solar panel efficiency curves"),
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	results, err := s.Search("solar effic")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected both tokens to match as prefixes, got %d results", len(results))
	}

	results, err = s.Search("solar zebra")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results when one token misses, got %d", len(results))
	}
}

func TestSearchCoversThinking(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Physics", []*Message{
		{
			ID:       "m1",
			Role:     RoleAssistant,
			Content:  "Here is the final answer.",
			Thinking: strPtr("considering quantum decoherence first"),
		},
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	results, err := s.Search("quant")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected thinking text to be searchable, got %d results", len(results))
	}
}

func TestSearchBlankReturnsAllByRecency(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("old", "Old", []*Message{msg("m1", RoleUser, "alpha")}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.SaveConversation("new", "New", []*Message{msg("m2", RoleUser, "beta")}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	for _, query := range []string{"", "   "} {
		results, err := s.Search(query)
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", query, err)
		}
		if len(results) != 2 {
			t.Fatalf("Search(%q): expected 2 results, got %d", query, len(results))
		}
		if results[0].ID != "new" || results[1].ID != "old" {
			t.Errorf("Search(%q): expected [new old], got [%s %s]", query, results[0].ID, results[1].ID)
		}
	}
}

func TestSearchDistinctConversations(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Twice", []*Message{
		msg("m1", RoleUser, "orbit mechanics"),
		msg("m2", RoleAssistant, "orbit transfers are fuel hungry"),
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	results, err := s.Search("orbit")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected one conversation despite two matching messages, got %d", len(results))
	}
}

func TestSearchIndexFollowsRewrites(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Draft", []*Message{
		msg("m1", RoleUser, "original wording"),
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// Full replace rewrites every message row; the index must follow
	if err := s.SaveConversation("c1", "Draft", []*Message{
		msg("m1", RoleUser, "revised phrasing"),
	}); err != nil {
		t.Fatalf("Rewrite save failed: %v", err)
	}

	results, err := s.Search("original")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Stale index entry survived a rewrite: %d results", len(results))
	}

	results, err = s.Search("revised")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Rewritten content not indexed: %d results", len(results))
	}
}

func TestSearchIndexFollowsDeletes(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Doomed", []*Message{
		msg("m1", RoleUser, "ephemeral content"),
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := s.DeleteConversation("c1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	results, err := s.Search("ephemeral")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Deleted conversation still searchable: %d results", len(results))
	}
}

func TestSearchStripsQuotes(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveConversation("c1", "Quoted", []*Message{
		msg("m1", RoleUser, "photosynthesis basics"),
	}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	results, err := s.Search(`"photo"`)
	if err != nil {
		t.Fatalf("Search with quotes failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Quoted query should still prefix-match, got %d results", len(results))
	}
}

func TestBuildMatchQuery(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"photo", `"photo"*`},
		{"solar panel", `"solar"* "panel"*`},
		{`"quoted"`, `"quoted"*`},
		{`""`, ""},
	}
	for _, tc := range cases {
		if got := buildMatchQuery(tc.in); got != tc.want {
			t.Errorf("buildMatchQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
