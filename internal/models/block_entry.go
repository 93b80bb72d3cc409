package models

import "time"

// BlockEntry bars a user from opening modmail threads. Existence of the row
// is the sole truth of blocked status.
type BlockEntry struct {
	UserID    string `gorm:"primaryKey;size:32"`
	BlockedAt time.Time
}
