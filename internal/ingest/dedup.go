// Package ingest holds the per-message pipeline stages: deduplication,
// attachment admission, incident creation and mailbox state updates.
package ingest

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/incidentdesk/incidentdesk/internal/database"
)

// Deduplicator is the idempotency guard keyed by the message identifier
type Deduplicator struct {
	db *gorm.DB
}

// NewDeduplicator creates a deduplicator backed by the given database
func NewDeduplicator(db *gorm.DB) *Deduplicator {
	return &Deduplicator{db: db}
}

// IsDuplicate reports whether the message identifier has been processed
// before. Lookup errors are surfaced: the incident commits in its own
// transaction before the ledger row is written, so proceeding on an unreadable
// ledger could re-ingest an already processed message.
func (d *Deduplicator) IsDuplicate(messageID string) (bool, error) {
	record, err := database.FindProcessedMessage(d.db, messageID)
	if err != nil {
		return false, fmt.Errorf("dedup lookup failed for %s: %w", messageID, err)
	}
	return record != nil, nil
}

// Record writes the single ledger row for a message. It must be called only
// after all side effects for that message have completed or been explicitly
// decided against.
func (d *Deduplicator) Record(messageID string, incidentID *uint, subject, sender string, skipped bool, skipReason string) error {
	record := &database.ProcessedMessage{
		MessageID:  messageID,
		IncidentID: incidentID,
		Subject:    subject,
		Sender:     sender,
		Skipped:    skipped,
		SkipReason: skipReason,
	}
	if err := d.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record processed message %s: %w", messageID, err)
	}
	return nil
}
