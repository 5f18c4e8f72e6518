// conversations_cmd.go - handlers for conversation-level commands:
// list, show, search, branch, title and delete.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kittclouds/chatvault/pkg/highlight"
)

// HandleList prints every conversation, most recently updated first.
func HandleList(cfg *Config, args Args) error {
	svc, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	convs, err := svc.Conversations()
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(convs)
	}

	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	fmt.Printf("%-36s  %-16s  %s\n", "ID", "UPDATED", "TITLE")
	for _, c := range convs {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		if c.IsBranch() {
			title += fmt.Sprintf("  [branch of %s]", shortID(*c.ParentConversationID))
		}
		fmt.Printf("%-36s  %-16s  %s\n", c.ID, formatEpoch(c.UpdatedAt), title)
	}
	return nil
}

// HandleShow prints one conversation as Markdown or JSON.
func HandleShow(cfg *Config, args Args) error {
	if len(args.Raw) < 1 {
		return errors.New("usage: chatvault show <id> [--format md|json]")
	}
	id := args.Raw[0]

	svc, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	format := args.Format
	if format == "" && args.JSON {
		format = "json"
	}

	switch format {
	case "", "md", "markdown":
		md, err := svc.TranscriptMarkdown(id)
		if err != nil {
			return err
		}
		fmt.Print(md)
	case "json":
		data, err := svc.TranscriptJSON(id)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	default:
		return fmt.Errorf("unknown format %q, want md or json", format)
	}
	return nil
}

// HandleSearch runs a full-text prefix search and prints highlighted
// snippets.
func HandleSearch(cfg *Config, args Args) error {
	if len(args.Raw) == 0 {
		return errors.New("usage: chatvault search <query>")
	}
	query := strings.Join(args.Raw, " ")

	svc, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := svc.Search(query)
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	shown := results
	if len(shown) > cfg.Search.MaxResults {
		shown = shown[:cfg.Search.MaxResults]
	}
	for _, res := range shown {
		title := res.Conversation.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s\n", shortID(res.Conversation.ID), title)
		if res.Snippet != "" {
			fmt.Printf("    %s\n", boldSpans(res.Snippet, res.Spans))
		}
	}
	if len(results) > len(shown) {
		fmt.Printf("(%d more, raise search.max_results to see them)\n", len(results)-len(shown))
	}
	return nil
}

// HandleBranch forks a conversation after the given message index.
func HandleBranch(cfg *Config, args Args) error {
	if len(args.Raw) < 2 {
		return errors.New("usage: chatvault branch <id> <message-index> [--narrative TEXT] [--title TEXT]")
	}
	id := args.Raw[0]
	index, err := strconv.Atoi(args.Raw[1])
	if err != nil {
		return fmt.Errorf("message index %q is not a number", args.Raw[1])
	}

	svc, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	var narrative *string
	if args.Narrative != "" {
		narrative = &args.Narrative
	}

	sess, err := svc.Branch(id, index, narrative, args.Title)
	if err != nil {
		return err
	}

	if args.JSON {
		return printJSON(map[string]any{
			"id":     sess.ID(),
			"title":  sess.Title(),
			"parent": id,
		})
	}
	fmt.Printf("Created branch %s (%q) with %d messages.\n", sess.ID(), sess.Title(), sess.Len())
	return nil
}

// HandleTitle renames a conversation.
func HandleTitle(cfg *Config, args Args) error {
	if len(args.Raw) < 2 {
		return errors.New("usage: chatvault title <id> <new title>")
	}
	id := args.Raw[0]
	title := strings.Join(args.Raw[1:], " ")

	svc, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := svc.Rename(id, title); err != nil {
		return err
	}
	fmt.Printf("Renamed %s to %q.\n", shortID(id), title)
	return nil
}

// HandleDelete removes a conversation, its messages and attachments.
// Branches made from it survive.
func HandleDelete(cfg *Config, args Args) error {
	if len(args.Raw) < 1 {
		return errors.New("usage: chatvault delete <id> --confirm")
	}
	if !args.Confirm {
		return errors.New("delete is permanent, re-run with --confirm")
	}
	id := args.Raw[0]

	svc, st, err := openService(cfg, args)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := svc.Get(id); err != nil {
		return err
	}
	if err := svc.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Deleted %s.\n", shortID(id))
	return nil
}

// =============================================================================
// Output helpers
// =============================================================================

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func formatEpoch(secs float64) string {
	return time.Unix(int64(secs), 0).Local().Format("2006-01-02 15:04")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// boldSpans wraps the highlighted ranges of a snippet in ANSI bold.
func boldSpans(snippet string, spans []highlight.Span) string {
	if len(spans) == 0 {
		return snippet
	}
	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.Start < last || s.End > len(snippet) {
			continue
		}
		b.WriteString(snippet[last:s.Start])
		b.WriteString("\x1b[1m")
		b.WriteString(snippet[s.Start:s.End])
		b.WriteString("\x1b[0m")
		last = s.End
	}
	b.WriteString(snippet[last:])
	return b.String()
}
