// Package store provides persistence operations over Mailroom's GORM models.
// The database is the sole source of truth: callers re-read at the point of
// decision and never cache thread existence across task boundaries.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/mailroom/internal/models"
	"gorm.io/gorm"
)

// OpenThreadByUser returns the user's open thread, or nil if none exists.
func OpenThreadByUser(db *gorm.DB, userID string) (*models.Thread, error) {
	if userID == "" {
		return nil, fmt.Errorf("store: userID is required")
	}

	var thread models.Thread
	err := db.Where("user_id = ? AND status = ?", userID, models.ThreadOpen).
		First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open thread for user %s: %w", userID, err)
	}
	return &thread, nil
}

// ThreadByChannel returns the thread owning the given channel, open or
// closed, or nil if the channel is not a thread channel.
func ThreadByChannel(db *gorm.DB, channelID string) (*models.Thread, error) {
	if channelID == "" {
		return nil, fmt.Errorf("store: channelID is required")
	}

	var thread models.Thread
	err := db.Where("channel_id = ?", channelID).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: thread for channel %s: %w", channelID, err)
	}
	return &thread, nil
}

// OpenThreads returns all currently open threads.
func OpenThreads(db *gorm.DB) ([]models.Thread, error) {
	var threads []models.Thread
	if err := db.Where("status = ?", models.ThreadOpen).
		Order("created_at ASC").Find(&threads).Error; err != nil {
		return nil, fmt.Errorf("store: open threads: %w", err)
	}
	return threads, nil
}

// CreateThread persists a new open thread record.
func CreateThread(db *gorm.DB, channelID, userID, username string) (*models.Thread, error) {
	if channelID == "" {
		return nil, fmt.Errorf("store: channelID is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("store: userID is required")
	}

	thread := models.Thread{
		ChannelID: channelID,
		UserID:    userID,
		Username:  username,
		Status:    models.ThreadOpen,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&thread).Error; err != nil {
		return nil, fmt.Errorf("store: create thread for user %s: %w", userID, err)
	}
	return &thread, nil
}

// CloseThread marks the thread for the given channel closed. Closing an
// already-closed or unknown channel is a no-op, not an error: the transition
// is one-way and idempotent.
func CloseThread(db *gorm.DB, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("store: channelID is required")
	}

	now := time.Now()
	result := db.Model(&models.Thread{}).
		Where("channel_id = ? AND status = ?", channelID, models.ThreadOpen).
		Updates(map[string]interface{}{"status": models.ThreadClosed, "closed_at": &now})
	if result.Error != nil {
		return fmt.Errorf("store: close thread %s: %w", channelID, result.Error)
	}
	return nil
}
