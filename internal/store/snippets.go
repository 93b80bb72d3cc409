package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/mailroom/internal/models"
	"gorm.io/gorm"
)

// Snippet returns the snippet for a shortcut, or nil if none exists.
// Shortcuts are case-insensitive.
func Snippet(db *gorm.DB, shortcut string) (*models.Snippet, error) {
	if shortcut == "" {
		return nil, fmt.Errorf("store: shortcut is required")
	}

	var snippet models.Snippet
	err := db.Where("shortcut = ?", strings.ToLower(shortcut)).First(&snippet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: snippet %s: %w", shortcut, err)
	}
	return &snippet, nil
}

// AddSnippet creates a snippet. Fails if the shortcut already exists.
func AddSnippet(db *gorm.DB, shortcut, text string, anonymous bool) error {
	if shortcut == "" {
		return fmt.Errorf("store: shortcut is required")
	}
	if text == "" {
		return fmt.Errorf("store: text is required")
	}

	snippet := models.Snippet{
		Shortcut:  strings.ToLower(shortcut),
		Text:      text,
		Anonymous: anonymous,
		CreatedAt: time.Now(),
	}
	if err := db.Create(&snippet).Error; err != nil {
		return fmt.Errorf("store: add snippet %s: %w", shortcut, err)
	}
	return nil
}

// DeleteSnippet removes a snippet by shortcut.
func DeleteSnippet(db *gorm.DB, shortcut string) error {
	if shortcut == "" {
		return fmt.Errorf("store: shortcut is required")
	}

	if err := db.Where("shortcut = ?", strings.ToLower(shortcut)).
		Delete(&models.Snippet{}).Error; err != nil {
		return fmt.Errorf("store: delete snippet %s: %w", shortcut, err)
	}
	return nil
}

// AllSnippets returns every snippet, sorted by shortcut.
func AllSnippets(db *gorm.DB) ([]models.Snippet, error) {
	var snippets []models.Snippet
	if err := db.Order("shortcut ASC").Find(&snippets).Error; err != nil {
		return nil, fmt.Errorf("store: list snippets: %w", err)
	}
	return snippets, nil
}
