package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/mailroom/internal/attachments"
	"github.com/zulandar/mailroom/internal/config"
	"github.com/zulandar/mailroom/internal/store"
	"gorm.io/gorm"
)

// transcriptLimit caps how many messages are archived when closing a thread.
const transcriptLimit = 10000

// Engine is the relay orchestrator. It consumes inbound DM events and staff
// commands, resolves threads through the ThreadManager, and produces the
// outbound platform messages that mirror each side to the other.
type Engine struct {
	db         *gorm.DB
	cfg        *config.Config
	adapter    Adapter
	manager    *ThreadManager
	files      attachments.Store
	downloader *attachments.Downloader
	out        io.Writer

	bg sync.WaitGroup // in-flight attachment patch tasks
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	DB      *gorm.DB
	Config  *config.Config
	Adapter Adapter
	Manager *ThreadManager
	Files   attachments.Store
	Out     io.Writer // defaults to os.Stdout
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: engine: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("relay: engine: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: engine: adapter is required")
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("relay: engine: manager is required")
	}
	if opts.Files == nil {
		return nil, fmt.Errorf("relay: engine: attachment store is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		db:         opts.DB,
		cfg:        opts.Config,
		adapter:    opts.Adapter,
		manager:    opts.Manager,
		files:      opts.Files,
		downloader: attachments.NewDownloader(opts.Files),
		out:        out,
	}, nil
}

// Flush waits for in-flight background work (attachment patches). Called on
// shutdown so a relayed message is not left with a stale placeholder when
// the patch could still land.
func (e *Engine) Flush() {
	e.bg.Wait()
}

// HandleUserMessage relays an inbound DM into the user's thread, creating
// the thread first if none is open.
func (e *Engine) HandleUserMessage(ctx context.Context, msg UserMessage) error {
	blocked, err := store.IsBlocked(e.db, msg.Author.ID)
	if err != nil {
		return fmt.Errorf("relay: blocked check: %w", err)
	}
	if blocked {
		return nil
	}

	// Persist attachment bytes in the background; message relay must not
	// wait on upload latency.
	saved := e.saveAttachments(ctx, msg.Attachments)

	thread, wasCreated, err := e.manager.GetOrCreateForUser(ctx, msg.Author, msg.Content)
	if err != nil {
		var tce *ThreadCreationError
		if errors.As(err, &tce) {
			e.warnThreadCreationFailed(ctx, tce)
			return nil
		}
		return err
	}

	if wasCreated {
		e.initThread(ctx, thread.ChannelID, msg.Author)
	}

	content := msg.Content
	if len(msg.Attachments) > 0 {
		content += attachmentsPending
	}

	line := fmt.Sprintf("[%s] « **%s:** %s", Timestamp(time.Now()), msg.Author.Tag(), content)
	messageID, err := e.adapter.SendMessage(ctx, thread.ChannelID, line)
	if err != nil {
		return fmt.Errorf("relay: post to thread %s: %w", thread.ChannelID, err)
	}

	if len(msg.Attachments) > 0 {
		e.patchAttachmentsLater(thread.ChannelID, messageID, line, msg.Attachments, saved)
	}
	return nil
}

// warnThreadCreationFailed posts the staff-visible fallback warning with the
// original message content, so staff can DM the user manually.
func (e *Engine) warnThreadCreationFailed(ctx context.Context, tce *ThreadCreationError) {
	log.Printf("relay: thread for %s could not be created: %v", tce.User.Tag(), tce.Err)

	warning := fmt.Sprintf("@here Error creating modmail thread for %s (%s)!\n\nHere's what their message contained:\n```%s```",
		tce.User.Tag(), tce.User.ID, tce.Content)
	if err := e.adapter.NotifyStaff(ctx, warning); err != nil {
		log.Printf("relay: post creation warning: %v", err)
	}
}

// initThread posts the info header and staff notification into a freshly
// created thread, and sends the one-time acknowledgment DM to the user.
// The acknowledgment is best-effort: failure is reported to staff but never
// fails the relay.
func (e *Engine) initThread(ctx context.Context, channelID string, user User) {
	nickname := "NOT ON SERVER"
	member, err := e.adapter.MainGuildMember(ctx, user.ID)
	if err != nil {
		log.Printf("relay: member lookup for %s: %v", user.ID, err)
		nickname = "UNKNOWN"
	} else if member != nil {
		nickname = member.Nick
		if nickname == "" {
			nickname = user.Username
		}
	}

	logCount, err := store.LogCountByUser(e.db, user.ID)
	if err != nil {
		log.Printf("relay: log count for %s: %v", user.ID, err)
	}

	header := InfoHeader(time.Since(user.CreatedAt), user.ID, nickname, logCount)
	if _, err := e.adapter.SendMessage(ctx, channelID, header); err != nil {
		log.Printf("relay: post info header: %v", err)
	}
	notice := fmt.Sprintf("@here New modmail thread (%s)", user.Tag())
	if _, err := e.adapter.SendMessage(ctx, channelID, notice); err != nil {
		log.Printf("relay: post thread notification: %v", err)
	}

	if err := e.adapter.SendDM(ctx, user.ID, e.cfg.ResponseMessage, nil); err != nil {
		report := fmt.Sprintf("There is an issue sending messages to %s (id %s); consider messaging manually",
			user.Tag(), user.ID)
		if nerr := e.adapter.NotifyStaff(ctx, report); nerr != nil {
			log.Printf("relay: report ack failure: %v", nerr)
		}
	}
}

// saveAttachments starts persisting all attachments of a message and
// returns a channel that resolves once every download has settled.
func (e *Engine) saveAttachments(ctx context.Context, atts []Attachment) <-chan error {
	done := make(chan error, 1)
	if len(atts) == 0 {
		done <- nil
		return done
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		var firstErr error
		for _, att := range atts {
			key := attachments.AttachmentKey(att.ID, att.Filename)
			if err := e.downloader.Fetch(ctx, key, att.URL, att.Size); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		done <- firstErr
	}()
	return done
}

// patchAttachmentsLater waits for attachment persistence and then edits the
// relayed message, replacing the pending placeholder with formatted links.
// If persistence failed the placeholder stays: attachment resolution is a
// best-effort enhancement, not core correctness.
func (e *Engine) patchAttachmentsLater(channelID, messageID, line string, atts []Attachment, saved <-chan error) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		if err := <-saved; err != nil {
			log.Printf("relay: attachments for message %s unresolved: %v", messageID, err)
			return
		}

		var links strings.Builder
		for _, att := range atts {
			url := e.files.URL(attachments.AttachmentKey(att.ID, att.Filename))
			links.WriteString("\n\n" + FormatAttachment(att.Filename, att.Size, url))
		}

		patched := strings.Replace(line, attachmentsPending, links.String(), 1)
		if err := e.adapter.EditMessage(context.Background(), channelID, messageID, patched); err != nil {
			log.Printf("relay: patch attachments on %s: %v", messageID, err)
		}
	}()
}

// HandleUserMessageEdit posts a before/after diff into the user's thread.
// Bogus edit events with unchanged trimmed content are ignored.
func (e *Engine) HandleUserMessageEdit(ctx context.Context, ev UserMessageEdit) error {
	blocked, err := store.IsBlocked(e.db, ev.Author.ID)
	if err != nil {
		return fmt.Errorf("relay: blocked check: %w", err)
	}
	if blocked {
		return nil
	}

	oldContent := ev.OldContent
	if oldContent == "" {
		oldContent = "*Unavailable due to bot restart*"
	}
	if strings.TrimSpace(ev.NewContent) == strings.TrimSpace(oldContent) {
		return nil
	}

	thread, err := store.OpenThreadByUser(e.db, ev.Author.ID)
	if err != nil {
		return err
	}
	if thread == nil {
		return nil
	}

	diff := DisableLinkPreviews(fmt.Sprintf("**The user edited their message:**\n`B:` %s\n`A:` %s",
		oldContent, ev.NewContent))
	if _, err := e.adapter.SendMessage(ctx, thread.ChannelID, diff); err != nil {
		return fmt.Errorf("relay: post edit diff: %w", err)
	}
	return nil
}

// HandleMention notifies staff that the bot was mentioned in a main-guild
// channel. Suppressed for blocked users so they leave no trace.
func (e *Engine) HandleMention(ctx context.Context, ev Mention) error {
	blocked, err := store.IsBlocked(e.db, ev.Author.ID)
	if err != nil {
		return fmt.Errorf("relay: blocked check: %w", err)
	}
	if blocked {
		return nil
	}

	notice := fmt.Sprintf("@here Bot mentioned in #%s by **%s**: %q",
		ev.ChannelName, ev.Author.Tag(), ev.Content)
	return e.adapter.NotifyStaff(ctx, notice)
}

// Reply relays a staff reply from a thread channel into the user's DM and
// mirrors the delivered content back into the thread. A no-op when the
// message was not posted in a thread channel.
func (e *Engine) Reply(ctx context.Context, src StaffMessage, text string, anonymous bool) error {
	thread, err := e.manager.GetByChannelID(ctx, src.ChannelID)
	if err != nil {
		return err
	}
	if thread == nil || !thread.IsOpen() {
		return nil
	}

	modName, logName := e.composeReplyNames(src, anonymous)
	content := fmt.Sprintf("**%s:** %s", modName, text)
	logContent := fmt.Sprintf("**%s:** %s", logName, text)

	// Staff attachments are relayed as platform-native files for exact
	// fidelity; only the first attachment is forwarded.
	var file *File
	var attachmentURL string
	if len(src.Attachments) > 0 {
		att := src.Attachments[0]
		key := attachments.AttachmentKey(att.ID, att.Filename)
		if err := e.downloader.Fetch(ctx, key, att.URL, att.Size); err != nil {
			return fmt.Errorf("relay: persist reply attachment: %w", err)
		}
		r, err := e.files.Open(ctx, key)
		if err != nil {
			return fmt.Errorf("relay: open reply attachment: %w", err)
		}
		defer r.Close()
		file = &File{Name: att.Filename, Reader: r}
		attachmentURL = e.files.URL(key)
	}

	err = e.adapter.SendDM(ctx, thread.UserID, content, file)
	switch {
	case err == nil:
		if attachmentURL != "" {
			logContent += "\n\n**Attachment:** " + attachmentURL
		}
		mirror := fmt.Sprintf("[%s] » %s", Timestamp(time.Now()), logContent)
		if _, err := e.adapter.SendMessage(ctx, src.ChannelID, mirror); err != nil {
			log.Printf("relay: mirror reply into thread %s: %v", src.ChannelID, err)
		}
	case errors.Is(err, ErrDeliveryForbidden):
		e.postDeliveryNotice(ctx, src.ChannelID,
			"Could not send reply; the user has likely left the server or blocked the bot")
	default:
		var perr *PlatformError
		if errors.As(err, &perr) {
			e.postDeliveryNotice(ctx, src.ChannelID,
				fmt.Sprintf("Could not send reply; error code %d", perr.Code))
		} else {
			e.postDeliveryNotice(ctx, src.ChannelID,
				fmt.Sprintf("Could not send reply: %v", err))
		}
	}

	// The command message is cleaned up even when delivery failed, keeping
	// the thread transcript to relayed content and notices.
	if err := e.adapter.DeleteMessage(ctx, src.ChannelID, src.MessageID); err != nil {
		log.Printf("relay: delete command message %s: %v", src.MessageID, err)
	}
	return nil
}

// composeReplyNames builds the DM-visible and thread-visible author names
// for a staff reply. Anonymous replies show only the primary role name.
func (e *Engine) composeReplyNames(src StaffMessage, anonymous bool) (modName, logName string) {
	role := src.Member.PrimaryRole
	if role == "" {
		role = "Moderator"
	}

	if anonymous {
		return role, fmt.Sprintf("(Anonymous) (%s) %s", src.Author.Username, role)
	}

	name := src.Author.Username
	if e.cfg.UseNicknames && src.Member.Nick != "" {
		name = src.Member.Nick
	}
	if src.Member.PrimaryRole != "" {
		name = fmt.Sprintf("(%s) %s", src.Member.PrimaryRole, name)
	}
	return name, name
}

// postDeliveryNotice posts a human-readable delivery failure notice into
// the thread channel.
func (e *Engine) postDeliveryNotice(ctx context.Context, channelID, notice string) {
	if _, err := e.adapter.SendMessage(ctx, channelID, notice); err != nil {
		log.Printf("relay: post delivery notice: %v", err)
	}
}

// CloseThread archives the channel transcript to a log file, posts the log
// URL to staff, marks the thread closed, and deletes the channel. The
// channel is only deleted after the close has been persisted.
func (e *Engine) CloseThread(ctx context.Context, src StaffMessage) error {
	thread, err := e.manager.GetByChannelID(ctx, src.ChannelID)
	if err != nil {
		return err
	}
	if thread == nil || !thread.IsOpen() {
		return nil
	}

	if _, err := e.adapter.SendMessage(ctx, src.ChannelID, "Saving logs and closing channel..."); err != nil {
		log.Printf("relay: post closing notice: %v", err)
	}

	msgs, err := e.adapter.ChannelMessages(ctx, src.ChannelID, transcriptLimit)
	if err != nil {
		return fmt.Errorf("relay: fetch transcript for %s: %w", src.ChannelID, err)
	}
	body := FormatTranscript(msgs)

	filename, err := store.NewLogFilename(e.db, thread.UserID)
	if err != nil {
		return err
	}
	key := attachments.LogKey(filename)
	if err := e.files.Save(ctx, key, strings.NewReader(body), int64(len(body)), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("relay: save transcript %s: %w", filename, err)
	}

	closeNotice := fmt.Sprintf("Modmail thread with %s (%s) was closed by %s\nLogs: <%s>",
		thread.Username, thread.UserID, src.Author.Username, e.files.URL(key))
	if err := e.adapter.NotifyStaff(ctx, closeNotice); err != nil {
		log.Printf("relay: post close notice: %v", err)
	}

	if err := e.manager.Close(ctx, src.ChannelID); err != nil {
		return err
	}
	if err := e.adapter.DeleteChannel(ctx, src.ChannelID); err != nil {
		return fmt.Errorf("relay: delete channel %s: %w", src.ChannelID, err)
	}
	return nil
}

// Block bars a user from modmail. With an argument the target is a mention
// or raw ID; without one, inside a thread channel, the thread's user.
func (e *Engine) Block(ctx context.Context, src StaffMessage, args []string) error {
	userID, err := e.resolveTarget(ctx, src, args)
	if err != nil || userID == "" {
		return err
	}
	if err := store.Block(e.db, userID); err != nil {
		return err
	}
	confirm := fmt.Sprintf("Blocked <@%s> (id %s) from modmail", userID, userID)
	if _, err := e.adapter.SendMessage(ctx, src.ChannelID, confirm); err != nil {
		log.Printf("relay: post block confirmation: %v", err)
	}
	return nil
}

// Unblock lifts a block. Target resolution matches Block.
func (e *Engine) Unblock(ctx context.Context, src StaffMessage, args []string) error {
	userID, err := e.resolveTarget(ctx, src, args)
	if err != nil || userID == "" {
		return err
	}
	if err := store.Unblock(e.db, userID); err != nil {
		return err
	}
	confirm := fmt.Sprintf("Unblocked <@%s> (id %s) from modmail", userID, userID)
	if _, err := e.adapter.SendMessage(ctx, src.ChannelID, confirm); err != nil {
		log.Printf("relay: post unblock confirmation: %v", err)
	}
	return nil
}

// ListLogs posts the target user's saved log files, 15 lines per message.
func (e *Engine) ListLogs(ctx context.Context, src StaffMessage, args []string) error {
	userID, err := e.resolveTarget(ctx, src, args)
	if err != nil || userID == "" {
		return err
	}

	entries, err := store.LogsByUser(e.db, userID)
	if err != nil {
		return err
	}

	lines := []string{fmt.Sprintf("**Log files for <@%s>:**", userID)}
	for _, entry := range entries {
		date := entry.CreatedAt.UTC().Format("Jan 2 at 15:04 MST")
		lines = append(lines, fmt.Sprintf("`%s`: <%s>", date, e.files.URL(attachments.LogKey(entry.Filename))))
	}

	for _, chunk := range Chunk(lines, 15) {
		if _, err := e.adapter.SendMessage(ctx, src.ChannelID, strings.Join(chunk, "\n")); err != nil {
			return fmt.Errorf("relay: post log list: %w", err)
		}
	}
	return nil
}

// resolveTarget resolves a command's target user: an explicit mention/ID
// argument, or the user of the thread the command was issued in. Returns ""
// when no target can be resolved; that is a silent no-op, not an error.
func (e *Engine) resolveTarget(ctx context.Context, src StaffMessage, args []string) (string, error) {
	if len(args) > 0 {
		return ParseUserMention(strings.Join(args, " ")), nil
	}
	thread, err := e.manager.GetByChannelID(ctx, src.ChannelID)
	if err != nil {
		return "", err
	}
	if thread == nil {
		return "", nil
	}
	return thread.UserID, nil
}
