package database

import (
	"time"

	"gorm.io/gorm"
)

// These helpers accept a db parameter (rather than using the global DB) to
// support transaction contexts and in-memory test databases.

// GetLocationByNameCI resolves a location by case-insensitive exact match.
// Returns nil (and no error) when the name is unknown.
func GetLocationByNameCI(db *gorm.DB, name string) (*Location, error) {
	if name == "" {
		return nil, nil
	}
	var loc Location
	err := db.Where("LOWER(name) = LOWER(?)", name).First(&loc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetTagByNameCI resolves a tag by case-insensitive exact match.
// Returns nil (and no error) when the name is unknown.
func GetTagByNameCI(db *gorm.DB, name string) (*Tag, error) {
	var tag Tag
	err := db.Where("LOWER(name) = LOWER(?)", name).First(&tag).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// GetOrCreateTag finds a tag by exact name or creates it
func GetOrCreateTag(db *gorm.DB, name string) (*Tag, error) {
	var tag Tag
	err := db.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	tag = Tag{Name: name}
	if err := db.Create(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// CountSuccessfulCallsSince counts successful API usage rows in (since, now],
// excluding the given sentinel caller
func CountSuccessfulCallsSince(db *gorm.DB, since time.Time, excludeCaller string) (int64, error) {
	var count int64
	err := db.Model(&APIUsage{}).
		Where("success = ? AND created_at > ? AND caller <> ?", true, since, excludeCaller).
		Count(&count).Error
	return count, err
}

// HasCallerRowSince reports whether the caller has any row in (since, now]
func HasCallerRowSince(db *gorm.DB, caller string, since time.Time) (bool, error) {
	var count int64
	err := db.Model(&APIUsage{}).
		Where("caller = ? AND created_at > ?", caller, since).
		Count(&count).Error
	return count > 0, err
}

// FindProcessedMessage looks up a dedup ledger row by exact message identifier.
// Returns nil (and no error) when the message has never been processed.
func FindProcessedMessage(db *gorm.DB, messageID string) (*ProcessedMessage, error) {
	var record ProcessedMessage
	err := db.Where("message_id = ?", messageID).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
