package store

import (
	"fmt"
	"time"

	"github.com/zulandar/mailroom/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IsBlocked reports whether the user is barred from opening threads.
func IsBlocked(db *gorm.DB, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("store: userID is required")
	}

	var count int64
	if err := db.Model(&models.BlockEntry{}).
		Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("store: blocked check for %s: %w", userID, err)
	}
	return count > 0, nil
}

// Block adds the user to the block list. Blocking an already-blocked user
// is a no-op success.
func Block(db *gorm.DB, userID string) error {
	if userID == "" {
		return fmt.Errorf("store: userID is required")
	}

	entry := models.BlockEntry{UserID: userID, BlockedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error; err != nil {
		return fmt.Errorf("store: block %s: %w", userID, err)
	}
	return nil
}

// Unblock removes the user from the block list. Unblocking an absent user
// is a no-op success.
func Unblock(db *gorm.DB, userID string) error {
	if userID == "" {
		return fmt.Errorf("store: userID is required")
	}

	if err := db.Where("user_id = ?", userID).
		Delete(&models.BlockEntry{}).Error; err != nil {
		return fmt.Errorf("store: unblock %s: %w", userID, err)
	}
	return nil
}
