package relay

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SentMessage records one SendMessage call on the mock adapter.
type SentMessage struct {
	ChannelID string
	MessageID string
	Content   string
}

// SentDM records one SendDM call on the mock adapter.
type SentDM struct {
	UserID   string
	Content  string
	Filename string
}

// MockAdapter implements Adapter for testing. It records every outbound
// action and lets tests inject per-operation failures.
type MockAdapter struct {
	mu sync.Mutex

	channelCounter int
	messageCounter int

	createdChannels []string
	deletedChannels []string
	sent            []SentMessage
	edits           map[string]string // messageID → content
	deletedMessages []string
	dms             []SentDM
	staffNotices    []string
	history         map[string][]TranscriptMessage
	members         map[string]*Member

	// Failure injection.
	CreateChannelErr error
	SendDMErr        error
	SendMessageErr   error
	ChannelMsgsErr   map[string]error

	// CreateChannelDelay simulates platform latency inside the serialized
	// creation task.
	CreateChannelDelay time.Duration
}

// NewMockAdapter creates a MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		edits:   make(map[string]string),
		history: make(map[string][]TranscriptMessage),
		members: make(map[string]*Member),
	}
}

// CreateChannel records the channel and returns a generated ID.
func (m *MockAdapter) CreateChannel(ctx context.Context, name string) (string, error) {
	if m.CreateChannelDelay > 0 {
		time.Sleep(m.CreateChannelDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateChannelErr != nil {
		return "", m.CreateChannelErr
	}
	m.channelCounter++
	id := fmt.Sprintf("chan-%d", m.channelCounter)
	m.createdChannels = append(m.createdChannels, id)
	return id, nil
}

// SendMessage records the message and returns a generated ID.
func (m *MockAdapter) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendMessageErr != nil {
		return "", m.SendMessageErr
	}
	m.messageCounter++
	id := fmt.Sprintf("msg-%d", m.messageCounter)
	m.sent = append(m.sent, SentMessage{ChannelID: channelID, MessageID: id, Content: content})
	return id, nil
}

// EditMessage records the new content for a message.
func (m *MockAdapter) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits[messageID] = content
	return nil
}

// DeleteMessage records the deletion.
func (m *MockAdapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedMessages = append(m.deletedMessages, messageID)
	return nil
}

// DeleteChannel records the deletion.
func (m *MockAdapter) DeleteChannel(ctx context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedChannels = append(m.deletedChannels, channelID)
	return nil
}

// SendDM records the DM, returning the injected error if set.
func (m *MockAdapter) SendDM(ctx context.Context, userID, content string, file *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendDMErr != nil {
		return m.SendDMErr
	}
	dm := SentDM{UserID: userID, Content: content}
	if file != nil {
		dm.Filename = file.Name
	}
	m.dms = append(m.dms, dm)
	return nil
}

// NotifyStaff records the staff notice.
func (m *MockAdapter) NotifyStaff(ctx context.Context, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staffNotices = append(m.staffNotices, content)
	return nil
}

// ChannelMessages returns pre-configured history for a channel.
func (m *MockAdapter) ChannelMessages(ctx context.Context, channelID string, limit int) ([]TranscriptMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ChannelMsgsErr[channelID]; err != nil {
		return nil, err
	}
	msgs := m.history[channelID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// MainGuildMember returns a pre-configured member, or nil if unset.
func (m *MockAdapter) MainGuildMember(ctx context.Context, userID string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[userID], nil
}

// --- Test helpers ---

// SetMember pre-configures the main-guild member for a user.
func (m *MockAdapter) SetMember(userID string, member *Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[userID] = member
}

// SetHistory pre-populates channel history for transcript tests.
func (m *MockAdapter) SetHistory(channelID string, msgs []TranscriptMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[channelID] = msgs
}

// CreatedChannels returns a copy of all created channel IDs.
func (m *MockAdapter) CreatedChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.createdChannels...)
}

// DeletedChannels returns a copy of all deleted channel IDs.
func (m *MockAdapter) DeletedChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletedChannels...)
}

// Sent returns a copy of all sent channel messages.
func (m *MockAdapter) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SentTo returns the channel messages sent to one channel.
func (m *MockAdapter) SentTo(channelID string) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, s := range m.sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

// Edit returns the edited content for a message ID.
func (m *MockAdapter) Edit(messageID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.edits[messageID]
	return content, ok
}

// DeletedMessages returns a copy of all deleted message IDs.
func (m *MockAdapter) DeletedMessages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletedMessages...)
}

// DMs returns a copy of all sent DMs.
func (m *MockAdapter) DMs() []SentDM {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentDM(nil), m.dms...)
}

// StaffNotices returns a copy of all staff notices.
func (m *MockAdapter) StaffNotices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.staffNotices...)
}
