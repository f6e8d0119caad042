package ingest

import (
	"context"
	"log"
)

// LabelSetter mutates labels on the remote mail store
type LabelSetter interface {
	SetLabels(ctx context.Context, messageID string, add, remove []string) error
}

// MailboxStateUpdater relabels a consumed source message so it stops showing
// up as new. Best-effort only: by the time it runs the incident is already
// durable and deduplicated, so a failure merely causes a redundant fetch that
// the dedup ledger will skip next cycle.
type MailboxStateUpdater struct {
	client         LabelSetter
	processedLabel string
}

// NewMailboxStateUpdater creates a mailbox state updater
func NewMailboxStateUpdater(client LabelSetter, processedLabel string) *MailboxStateUpdater {
	return &MailboxStateUpdater{client: client, processedLabel: processedLabel}
}

// MarkConsumed removes the message from the inbox and tags it processed.
// It never raises to its caller.
func (u *MailboxStateUpdater) MarkConsumed(ctx context.Context, messageID string) {
	err := u.client.SetLabels(ctx, messageID, []string{u.processedLabel}, []string{"INBOX"})
	if err != nil {
		log.Printf("Failed to relabel message %s (will be skipped as duplicate next cycle): %v", messageID, err)
	}
}
