// Package models defines the GORM-persisted records for Mailroom.
package models

import "time"

// Thread status values. Transitions are one-way: open → closed.
const (
	ThreadOpen   = "open"
	ThreadClosed = "closed"
)

// Thread pairs a user's DM conversation with a staff-facing channel in the
// inbox guild. At most one open thread exists per user at any time.
type Thread struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChannelID string `gorm:"size:32;not null;uniqueIndex"`
	UserID    string `gorm:"size:32;not null;index"`
	Username  string `gorm:"size:128"`
	Status    string `gorm:"size:8;not null;default:open;index"`
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// IsOpen reports whether the thread is still accepting relayed messages.
func (t *Thread) IsOpen() bool {
	return t.Status == ThreadOpen
}
