package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/mailroom/internal/models"
	"gorm.io/gorm"
)

// NewLogFilename reserves a ThreadLog record for the user and returns its
// generated filename. The transcript bytes are written separately by the
// attachment store under this key.
func NewLogFilename(db *gorm.DB, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("store: userID is required")
	}

	filename := fmt.Sprintf("%s-%s.txt", time.Now().UTC().Format("2006-01-02-15-04"), uuid.NewString())
	entry := models.ThreadLog{
		UserID:    userID,
		Filename:  filename,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&entry).Error; err != nil {
		return "", fmt.Errorf("store: new log for %s: %w", userID, err)
	}
	return filename, nil
}

// LogsByUser returns the user's saved logs, oldest first.
func LogsByUser(db *gorm.DB, userID string) ([]models.ThreadLog, error) {
	if userID == "" {
		return nil, fmt.Errorf("store: userID is required")
	}

	var entries []models.ThreadLog
	if err := db.Where("user_id = ?", userID).
		Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: logs for %s: %w", userID, err)
	}
	return entries, nil
}

// LogCountByUser returns how many saved logs the user has.
func LogCountByUser(db *gorm.DB, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("store: userID is required")
	}

	var count int64
	if err := db.Model(&models.ThreadLog{}).
		Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: log count for %s: %w", userID, err)
	}
	return count, nil
}
