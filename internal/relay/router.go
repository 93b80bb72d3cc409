package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/zulandar/mailroom/internal/config"
)

// Event is an inbound platform event. The set of variants is closed:
// UserMessage, UserMessageEdit, Mention, and StaffMessage.
type Event interface {
	isEvent()
}

func (UserMessage) isEvent()     {}
func (UserMessageEdit) isEvent() {}
func (Mention) isEvent()         {}
func (StaffMessage) isEvent()    {}

// Router classifies inbound events and dispatches them to engine
// operations: DM relay, edit propagation, mention notification, and the
// staff command set.
type Router struct {
	engine *Engine
	cfg    *config.Config
	out    io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Engine *Engine
	Config *config.Config
	Out    io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("relay: router: engine is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("relay: router: config is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{engine: opts.Engine, cfg: opts.Config, out: out}, nil
}

// Handle routes a single inbound event. Errors from engine operations are
// logged, never propagated: one failed event must not take down the pump.
func (r *Router) Handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case UserMessage:
		if err := r.engine.HandleUserMessage(ctx, ev); err != nil {
			log.Printf("relay: router: user message from %s: %v", ev.Author.Tag(), err)
		}
	case UserMessageEdit:
		if err := r.engine.HandleUserMessageEdit(ctx, ev); err != nil {
			log.Printf("relay: router: edit from %s: %v", ev.Author.Tag(), err)
		}
	case Mention:
		if err := r.engine.HandleMention(ctx, ev); err != nil {
			log.Printf("relay: router: mention by %s: %v", ev.Author.Tag(), err)
		}
	case StaffMessage:
		r.handleStaffMessage(ctx, ev)
	}
}

// handleStaffMessage parses and dispatches an inbox guild message: a prefix
// command, a snippet shortcut, or (with always_reply) a bare thread reply.
// Non-staff messages are ignored entirely.
func (r *Router) handleStaffMessage(ctx context.Context, msg StaffMessage) {
	if !msg.Member.IsStaff {
		return
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" && len(msg.Attachments) == 0 {
		return
	}

	// Snippet prefix is checked before the command prefix: with the default
	// config ("!" / "!!") every snippet invocation also looks like a command.
	if strings.HasPrefix(text, r.cfg.SnippetPrefix) && len(text) > len(r.cfg.SnippetPrefix) {
		shortcut := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(text, r.cfg.SnippetPrefix)))
		if !strings.Contains(shortcut, " ") {
			fmt.Fprintf(r.out, "relay: router: snippet %q in %s\n", shortcut, msg.ChannelID)
			if err := r.engine.SendSnippet(ctx, msg, shortcut); err != nil {
				log.Printf("relay: router: snippet %q: %v", shortcut, err)
			}
			return
		}
	}

	if strings.HasPrefix(text, r.cfg.Prefix) {
		name, args := parseCommand(text, r.cfg.Prefix)
		fmt.Fprintf(r.out, "relay: router: command %q in %s\n", name, msg.ChannelID)
		if err := r.dispatchCommand(ctx, msg, name, args); err != nil {
			log.Printf("relay: router: command %q: %v", name, err)
		}
		return
	}

	// always_reply: bare staff messages inside a thread channel are relayed
	// as replies. Reply is a no-op outside thread channels.
	if r.cfg.AlwaysReply {
		if err := r.engine.Reply(ctx, msg, text, r.cfg.AlwaysReplyAnon); err != nil {
			log.Printf("relay: router: always-reply: %v", err)
		}
	}
}

// parseCommand splits a prefixed command into its name and argument words.
func parseCommand(text, prefix string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// dispatchCommand routes a parsed staff command to its engine operation.
// Unknown commands are ignored; the prefix is shared with other bots.
func (r *Router) dispatchCommand(ctx context.Context, msg StaffMessage, name string, args []string) error {
	switch name {
	case "reply", "r":
		return r.engine.Reply(ctx, msg, strings.Join(args, " "), false)
	case "anonreply", "ar":
		return r.engine.Reply(ctx, msg, strings.Join(args, " "), true)
	case "close":
		return r.engine.CloseThread(ctx, msg)
	case "block":
		return r.engine.Block(ctx, msg, args)
	case "unblock":
		return r.engine.Unblock(ctx, msg, args)
	case "logs":
		return r.engine.ListLogs(ctx, msg, args)
	case "snippet", "s":
		shortcut, text := splitSnippetArgs(args)
		return r.engine.ShowOrAddSnippet(ctx, msg, shortcut, text)
	case "edit_snippet", "es":
		shortcut, text := splitSnippetArgs(args)
		return r.engine.EditSnippet(ctx, msg, shortcut, text)
	case "delete_snippet", "ds":
		shortcut, _ := splitSnippetArgs(args)
		return r.engine.DeleteSnippet(ctx, msg, shortcut)
	case "snippets":
		return r.engine.ListSnippets(ctx, msg)
	default:
		return nil
	}
}

// splitSnippetArgs separates a snippet command's shortcut from its text.
func splitSnippetArgs(args []string) (shortcut, text string) {
	if len(args) == 0 {
		return "", ""
	}
	return args[0], strings.TrimSpace(strings.Join(args[1:], " "))
}
