package models

import "time"

// Snippet is a named canned reply staff can send with the snippet prefix.
type Snippet struct {
	Shortcut  string `gorm:"primaryKey;size:64"`
	Text      string `gorm:"type:text;not null"`
	Anonymous bool   `gorm:"default:false"`
	CreatedAt time.Time
}
