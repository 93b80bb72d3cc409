// Package discord implements the relay Adapter for Discord using the
// Gateway WebSocket.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/mailroom/internal/config"
	"github.com/zulandar/mailroom/internal/relay"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// historyPageSize is the number of messages per page for transcripts.
	historyPageSize = 100
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	UpdateGameStatus(idle int, name string) error
	Channel(channelID string) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreate(guildID, name string, ctype discordgo.ChannelType, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) UpdateGameStatus(idle int, name string) error {
	return r.s.UpdateGameStatus(idle, name)
}
func (r *realSession) Channel(channelID string) (*discordgo.Channel, error) {
	if ch, err := r.s.State.Channel(channelID); err == nil {
		return ch, nil
	}
	return r.s.Channel(channelID)
}
func (r *realSession) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return r.s.GuildChannels(guildID, options...)
}
func (r *realSession) GuildChannelCreate(guildID, name string, ctype discordgo.ChannelType, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.GuildChannelCreate(guildID, name, ctype, options...)
}
func (r *realSession) ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.ChannelDelete(channelID, options...)
}
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageEdit(channelID, messageID, content, options...)
}
func (r *realSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	return r.s.ChannelMessageDelete(channelID, messageID, options...)
}
func (r *realSession) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return r.s.ChannelMessages(channelID, limit, beforeID, afterID, aroundID, options...)
}
func (r *realSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.UserChannelCreate(recipientID, options...)
}
func (r *realSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if m, err := r.s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	return r.s.GuildMember(guildID, userID, options...)
}
func (r *realSession) GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return r.s.GuildRoles(guildID, options...)
}

// staffPermissionBits maps config permission names to Discord permission bits.
var staffPermissionBits = map[string]int64{
	"administrator":   discordgo.PermissionAdministrator,
	"manage_guild":    discordgo.PermissionManageGuild,
	"manage_channels": discordgo.PermissionManageChannels,
	"manage_messages": discordgo.PermissionManageMessages,
	"kick_members":    discordgo.PermissionKickMembers,
	"ban_members":     discordgo.PermissionBanMembers,
}

// Adapter implements relay.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess           session
	cfg            *config.Config
	mu             sync.Mutex
	connected      bool
	closed         bool
	botUserID      string
	staffChannelID string
	inbound        chan relay.Event
	removeHandlers []func()
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	Config *config.Config
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("discord: config is required")
	}
	if opts.Session == nil && opts.Config.Token == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}

	a := &Adapter{
		cfg:     opts.Config,
		inbound: make(chan relay.Event, 100),
	}
	if opts.Session != nil {
		a.sess = opts.Session
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection, sets the
// bot's status, and resolves the staff announcement channel.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.cfg.Token)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		dg.State.MaxMessageCount = 500 // keep recent DMs cached for edit diffs
		a.sess = &realSession{s: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		if err := a.sess.UpdateGameStatus(0, a.cfg.Status); err != nil {
			log.Printf("discord: set status: %v", err)
		}
		log.Printf("discord: connected as %s (ID: %s), listening to DMs", r.User.Username, r.User.ID)
	})
	a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	if err := a.resolveStaffChannel(); err != nil {
		a.sess.Close()
		return err
	}

	a.connected = true
	return nil
}

// resolveStaffChannel picks the announcement channel: the configured one,
// or the lowest-positioned text channel of the inbox guild.
func (a *Adapter) resolveStaffChannel() error {
	if a.cfg.StaffChannelID != "" {
		a.staffChannelID = a.cfg.StaffChannelID
		return nil
	}

	channels, err := a.sess.GuildChannels(a.cfg.InboxGuildID)
	if err != nil {
		return fmt.Errorf("discord: list inbox channels: %w", err)
	}
	var best *discordgo.Channel
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if best == nil || ch.Position < best.Position {
			best = ch
		}
	}
	if best == nil {
		return fmt.Errorf("discord: inbox guild %s has no text channel", a.cfg.InboxGuildID)
	}
	a.staffChannelID = best.ID
	return nil
}

// Listen registers the message handlers and returns the inbound event
// channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan relay.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}

	a.removeHandlers = append(a.removeHandlers,
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			a.handleMessageCreate(m)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
			a.handleMessageUpdate(m)
		}),
	)
	return a.inbound, nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removeHandlers {
		remove()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// handleMessageCreate classifies a gateway message into a relay event:
// user DM, inbox guild staff message, or main-guild bot mention.
func (a *Adapter) handleMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	switch {
	case m.GuildID == "":
		a.deliver(relay.UserMessage{
			MessageID:   m.ID,
			Author:      toUser(m.Author),
			Content:     m.Content,
			Attachments: toAttachments(m.Attachments),
		})

	case m.GuildID == a.cfg.InboxGuildID:
		a.deliver(relay.StaffMessage{
			MessageID:   m.ID,
			ChannelID:   m.ChannelID,
			Author:      toUser(m.Author),
			Member:      a.buildMember(m.GuildID, m.Author.ID, m.Member),
			Content:     m.Content,
			Attachments: toAttachments(m.Attachments),
		})

	case m.GuildID == a.cfg.MainGuildID && a.mentionsBot(m, botID):
		// Staff mentioning the bot in the main guild is routine chatter.
		if _, err := a.sess.GuildMember(a.cfg.InboxGuildID, m.Author.ID); err == nil {
			return
		}
		a.deliver(relay.Mention{
			Author:      toUser(m.Author),
			ChannelName: a.channelName(m.ChannelID),
			Content:     m.Content,
		})
	}
}

// handleMessageUpdate forwards DM edits. The pre-edit content comes from
// the state cache and may be unavailable after a restart.
func (a *Adapter) handleMessageUpdate(m *discordgo.MessageUpdate) {
	if m.GuildID != "" || m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	oldContent := ""
	if m.BeforeUpdate != nil {
		oldContent = m.BeforeUpdate.Content
	}
	a.deliver(relay.UserMessageEdit{
		Author:     toUser(m.Author),
		OldContent: oldContent,
		NewContent: m.Content,
	})
}

// deliver pushes an event unless the adapter has been closed.
func (a *Adapter) deliver(ev relay.Event) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}
	a.inbound <- ev
}

// mentionsBot reports whether the message @mentions the bot user.
func (a *Adapter) mentionsBot(m *discordgo.MessageCreate, botID string) bool {
	for _, u := range m.Mentions {
		if u.ID == botID {
			return true
		}
	}
	return false
}

// channelName resolves a channel's display name, falling back to its ID.
func (a *Adapter) channelName(channelID string) string {
	ch, err := a.sess.Channel(channelID)
	if err != nil || ch.Name == "" {
		return channelID
	}
	return ch.Name
}

// buildMember assembles the relay view of a guild member: nickname, primary
// (highest hoisted) role, and whether they hold the staff permission.
func (a *Adapter) buildMember(guildID, userID string, m *discordgo.Member) relay.Member {
	if m == nil {
		fetched, err := a.sess.GuildMember(guildID, userID)
		if err != nil {
			return relay.Member{}
		}
		m = fetched
	}

	member := relay.Member{Nick: m.Nick}

	roles, err := a.sess.GuildRoles(guildID)
	if err != nil {
		log.Printf("discord: guild roles for %s: %v", guildID, err)
		return member
	}

	roleByID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		roleByID[r.ID] = r
	}

	var memberRoles []*discordgo.Role
	var perms int64
	for _, id := range m.Roles {
		r, ok := roleByID[id]
		if !ok {
			continue
		}
		memberRoles = append(memberRoles, r)
		perms |= r.Permissions
	}
	sort.Slice(memberRoles, func(i, j int) bool {
		return memberRoles[i].Position > memberRoles[j].Position
	})
	for _, r := range memberRoles {
		if r.Hoist {
			member.PrimaryRole = r.Name
			break
		}
	}

	member.IsStaff = a.isStaff(perms)
	return member
}

// isStaff checks the configured staff permission against computed role
// permissions. Administrators always pass.
func (a *Adapter) isStaff(perms int64) bool {
	required := staffPermissionBits[strings.ToLower(a.cfg.StaffPermission)]
	if required == 0 {
		return true // no permission configured: every inbox member is staff
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&required != 0
}

// --- relay.Adapter implementation ---

// CreateChannel creates a text channel in the inbox guild.
func (a *Adapter) CreateChannel(ctx context.Context, name string) (string, error) {
	var ch *discordgo.Channel
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		ch, apiErr = a.sess.GuildChannelCreate(a.cfg.InboxGuildID, name, discordgo.ChannelTypeGuildText)
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: create channel %s: %w", name, err)
	}
	return ch.ID, nil
}

// SendMessage posts content into a channel.
func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	var msg *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		msg, apiErr = a.sess.ChannelMessageSend(channelID, content)
		return apiErr
	})
	if err != nil {
		return "", mapPlatformError(fmt.Sprintf("send to %s", channelID), err)
	}
	return msg.ID, nil
}

// EditMessage replaces a message's content.
func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	err := a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelMessageEdit(channelID, messageID, content)
		return apiErr
	})
	if err != nil {
		return mapPlatformError(fmt.Sprintf("edit %s", messageID), err)
	}
	return nil
}

// DeleteMessage removes a message.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	err := a.retryOnRateLimit(ctx, func() error {
		return a.sess.ChannelMessageDelete(channelID, messageID)
	})
	if err != nil {
		return mapPlatformError(fmt.Sprintf("delete message %s", messageID), err)
	}
	return nil
}

// DeleteChannel removes a thread channel.
func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	err := a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelDelete(channelID)
		return apiErr
	})
	if err != nil {
		return mapPlatformError(fmt.Sprintf("delete channel %s", channelID), err)
	}
	return nil
}

// SendDM delivers content to the user's DM channel, with an optional native
// file attachment. A 403 maps to relay.ErrDeliveryForbidden.
func (a *Adapter) SendDM(ctx context.Context, userID, content string, file *relay.File) error {
	dm, err := a.sess.UserChannelCreate(userID)
	if err != nil {
		return mapDeliveryError(err)
	}

	data := &discordgo.MessageSend{Content: content}
	if file != nil {
		data.Files = []*discordgo.File{{Name: file.Name, Reader: file.Reader}}
	}

	err = a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelMessageSendComplex(dm.ID, data)
		return apiErr
	})
	if err != nil {
		return mapDeliveryError(err)
	}
	return nil
}

// NotifyStaff posts an announcement to the staff channel.
func (a *Adapter) NotifyStaff(ctx context.Context, content string) error {
	a.mu.Lock()
	channelID := a.staffChannelID
	a.mu.Unlock()
	if channelID == "" {
		return fmt.Errorf("discord: staff channel not resolved")
	}
	_, err := a.SendMessage(ctx, channelID, content)
	return err
}

// ChannelMessages retrieves up to limit messages from a channel, oldest
// first, paginating backwards through history.
func (a *Adapter) ChannelMessages(ctx context.Context, channelID string, limit int) ([]relay.TranscriptMessage, error) {
	var all []relay.TranscriptMessage
	beforeID := ""

	pageSize := historyPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	for {
		var msgs []*discordgo.Message
		err := a.retryOnRateLimit(ctx, func() error {
			var apiErr error
			msgs, apiErr = a.sess.ChannelMessages(channelID, pageSize, beforeID, "", "")
			return apiErr
		})
		if err != nil {
			return nil, mapPlatformError(fmt.Sprintf("messages of %s", channelID), err)
		}
		if len(msgs) == 0 {
			break
		}

		for _, m := range msgs {
			tag := ""
			if m.Author != nil {
				tag = m.Author.Username
				if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
					tag += "#" + m.Author.Discriminator
				}
			}
			all = append(all, relay.TranscriptMessage{
				AuthorTag: tag,
				Content:   m.Content,
				Timestamp: m.Timestamp,
			})
		}

		if limit > 0 && len(all) >= limit {
			all = all[:limit]
			break
		}
		beforeID = msgs[len(msgs)-1].ID
		if len(msgs) < pageSize {
			break
		}
	}

	// The API returns newest first; transcripts read oldest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// MainGuildMember returns the member record from the main guild, or nil if
// the user is not on the server.
func (a *Adapter) MainGuildMember(ctx context.Context, userID string) (*relay.Member, error) {
	m, err := a.sess.GuildMember(a.cfg.MainGuildID, userID)
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil && restErr.Response.StatusCode == 404 {
			return nil, nil
		}
		return nil, fmt.Errorf("discord: member %s: %w", userID, err)
	}
	member := a.buildMember(a.cfg.MainGuildID, userID, m)
	return &member, nil
}

// --- helpers ---

// toUser converts a discordgo user, deriving account age from the snowflake.
func toUser(u *discordgo.User) relay.User {
	created, _ := discordgo.SnowflakeTimestamp(u.ID)
	disc := u.Discriminator
	if disc == "0" {
		disc = ""
	}
	return relay.User{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: disc,
		CreatedAt:     created,
	}
}

// toAttachments converts discordgo attachments to relay references.
func toAttachments(atts []*discordgo.MessageAttachment) []relay.Attachment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]relay.Attachment, len(atts))
	for i, att := range atts {
		out[i] = relay.Attachment{
			ID:       att.ID,
			Filename: att.Filename,
			URL:      att.URL,
			Size:     int64(att.Size),
		}
	}
	return out
}

// mapDeliveryError classifies a DM delivery failure: 403 means the
// recipient is unreachable, other REST errors become *relay.PlatformError,
// everything else passes through as a transport error.
func mapDeliveryError(err error) error {
	restErr, ok := err.(*discordgo.RESTError)
	if !ok || restErr.Response == nil {
		return err
	}
	if restErr.Response.StatusCode == 403 {
		return fmt.Errorf("%w: %v", relay.ErrDeliveryForbidden, err)
	}
	return &relay.PlatformError{Code: restErr.Response.StatusCode, Message: restErr.Error()}
}

// mapPlatformError wraps REST errors with their status code so callers can
// classify, keeping transport errors intact.
func mapPlatformError(op string, err error) error {
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil {
		return fmt.Errorf("discord: %s: %w", op,
			&relay.PlatformError{Code: restErr.Response.StatusCode, Message: restErr.Error()})
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d) — retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
