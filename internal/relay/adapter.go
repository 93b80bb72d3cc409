// Package relay implements the modmail core: the engine that mirrors
// messages between user DMs and staff thread channels, and the thread
// lifecycle around it.
package relay

import (
	"context"
	"io"
	"time"
)

// Adapter is the narrow chat-platform surface the relay engine drives.
// Implementations handle one platform connection; the production adapter
// lives in the discord subpackage.
type Adapter interface {
	// CreateChannel creates a thread channel in the inbox guild and returns
	// its ID.
	CreateChannel(ctx context.Context, name string) (string, error)

	// SendMessage posts content into a channel and returns the message ID.
	SendMessage(ctx context.Context, channelID, content string) (string, error)

	// EditMessage replaces the content of a previously sent message.
	EditMessage(ctx context.Context, channelID, messageID, content string) error

	// DeleteMessage removes a single message from a channel.
	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// DeleteChannel removes a thread channel.
	DeleteChannel(ctx context.Context, channelID string) error

	// SendDM delivers content (and an optional native file attachment) to a
	// user's DM channel. Returns ErrDeliveryForbidden when the recipient is
	// unreachable, or a *PlatformError for other platform faults.
	SendDM(ctx context.Context, userID, content string, file *File) error

	// NotifyStaff posts an announcement to the inbox guild's staff channel,
	// with @here pings enabled.
	NotifyStaff(ctx context.Context, content string) error

	// ChannelMessages returns up to limit messages from a channel, oldest
	// first, for transcript archival.
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]TranscriptMessage, error)

	// MainGuildMember returns the member record for a user in the main
	// guild, or nil if the user is not on the server.
	MainGuildMember(ctx context.Context, userID string) (*Member, error)
}

// User identifies a DM counterpart.
type User struct {
	ID            string
	Username      string
	Discriminator string
	CreatedAt     time.Time // account creation, for the info header
}

// Tag returns the user's full platform tag.
func (u User) Tag() string {
	if u.Discriminator == "" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Member is a guild-scoped view of a user.
type Member struct {
	Nick        string
	PrimaryRole string // highest hoisted role name, empty if none
	IsStaff     bool   // holds the configured staff permission
}

// Attachment references an uploaded file on an inbound message.
type Attachment struct {
	ID       string
	Filename string
	URL      string // platform CDN URL to fetch bytes from
	Size     int64
}

// File is a blob sent as a platform-native attachment on an outbound DM.
type File struct {
	Name   string
	Reader io.Reader
}

// TranscriptMessage is one line of a thread channel's history.
type TranscriptMessage struct {
	AuthorTag string
	Content   string
	Timestamp time.Time
}

// UserMessage is a DM received from an end user.
type UserMessage struct {
	MessageID   string
	Author      User
	Content     string
	Attachments []Attachment
}

// UserMessageEdit is an edit event on a previously sent DM.
type UserMessageEdit struct {
	Author     User
	OldContent string
	NewContent string
}

// Mention is a bot @mention in a main-guild channel by a user who is not on
// the inbox guild.
type Mention struct {
	Author      User
	ChannelName string
	Content     string
}

// StaffMessage is a message posted in an inbox guild channel.
type StaffMessage struct {
	MessageID   string
	ChannelID   string
	Author      User
	Member      Member
	Content     string
	Attachments []Attachment
}
