package models

import "time"

// ThreadLog records a saved transcript of a closed thread. The transcript
// bytes live in the attachment store; Filename is the storage key.
type ThreadLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"size:32;not null;index"`
	Filename  string `gorm:"size:128;not null;uniqueIndex"`
	CreatedAt time.Time
}
