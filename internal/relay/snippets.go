package relay

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/zulandar/mailroom/internal/store"
)

// SendSnippet sends the canned reply for a shortcut through the normal
// reply path, honoring the snippet's anonymous flag. Unknown shortcuts are
// ignored so the snippet prefix never produces noise.
func (e *Engine) SendSnippet(ctx context.Context, src StaffMessage, shortcut string) error {
	snippet, err := store.Snippet(e.db, shortcut)
	if err != nil {
		return err
	}
	if snippet == nil {
		return nil
	}
	return e.Reply(ctx, src, snippet.Text, snippet.Anonymous)
}

// ShowOrAddSnippet implements the snippet command: with text it creates the
// snippet, without text it shows the existing one.
func (e *Engine) ShowOrAddSnippet(ctx context.Context, src StaffMessage, shortcut, text string) error {
	if shortcut == "" {
		return nil
	}

	snippet, err := store.Snippet(e.db, shortcut)
	if err != nil {
		return err
	}

	var response string
	switch {
	case snippet != nil && text != "":
		response = fmt.Sprintf("Snippet %q already exists! You can edit or delete it with %sedit_snippet and %sdelete_snippet respectively.",
			shortcut, e.cfg.Prefix, e.cfg.Prefix)
	case snippet != nil:
		anon := ""
		if snippet.Anonymous {
			anon = "anonymously "
		}
		response = fmt.Sprintf("`%s%s` replies %swith:\n%s", e.cfg.SnippetPrefix, shortcut, anon, snippet.Text)
	case text != "":
		if err := store.AddSnippet(e.db, shortcut, text, false); err != nil {
			return err
		}
		response = fmt.Sprintf("Snippet %q created!", shortcut)
	default:
		response = fmt.Sprintf("Snippet %q doesn't exist! You can create it with `%ssnippet %s text`",
			shortcut, e.cfg.Prefix, shortcut)
	}

	e.postSnippetResponse(ctx, src.ChannelID, response)
	return nil
}

// EditSnippet replaces an existing snippet's text, keeping its anonymous flag.
func (e *Engine) EditSnippet(ctx context.Context, src StaffMessage, shortcut, text string) error {
	if shortcut == "" || text == "" {
		return nil
	}

	snippet, err := store.Snippet(e.db, shortcut)
	if err != nil {
		return err
	}
	if snippet == nil {
		e.postSnippetResponse(ctx, src.ChannelID, fmt.Sprintf("Snippet %q doesn't exist!", shortcut))
		return nil
	}

	if err := store.DeleteSnippet(e.db, shortcut); err != nil {
		return err
	}
	if err := store.AddSnippet(e.db, shortcut, text, snippet.Anonymous); err != nil {
		return err
	}
	e.postSnippetResponse(ctx, src.ChannelID, fmt.Sprintf("Snippet %q edited!", shortcut))
	return nil
}

// DeleteSnippet removes a snippet.
func (e *Engine) DeleteSnippet(ctx context.Context, src StaffMessage, shortcut string) error {
	if shortcut == "" {
		return nil
	}

	snippet, err := store.Snippet(e.db, shortcut)
	if err != nil {
		return err
	}
	if snippet == nil {
		e.postSnippetResponse(ctx, src.ChannelID, fmt.Sprintf("Snippet %q doesn't exist!", shortcut))
		return nil
	}

	if err := store.DeleteSnippet(e.db, shortcut); err != nil {
		return err
	}
	e.postSnippetResponse(ctx, src.ChannelID, fmt.Sprintf("Snippet %q deleted!", shortcut))
	return nil
}

// ListSnippets posts the available snippet shortcuts.
func (e *Engine) ListSnippets(ctx context.Context, src StaffMessage) error {
	snippets, err := store.AllSnippets(e.db)
	if err != nil {
		return err
	}

	shortcuts := make([]string, len(snippets))
	for i, s := range snippets {
		shortcuts[i] = s.Shortcut
	}
	sort.Strings(shortcuts)

	response := fmt.Sprintf("Available snippets (prefix %s):\n%s",
		e.cfg.SnippetPrefix, strings.Join(shortcuts, ", "))
	e.postSnippetResponse(ctx, src.ChannelID, response)
	return nil
}

func (e *Engine) postSnippetResponse(ctx context.Context, channelID, response string) {
	if _, err := e.adapter.SendMessage(ctx, channelID, response); err != nil {
		log.Printf("relay: post snippet response: %v", err)
	}
}
