// Package jobs drives the ingestion pipeline: a fixed-interval timer whose
// ticks run a fetch-and-process cycle when the adaptive scheduler deems the
// tick eligible.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/incidentdesk/incidentdesk/internal/database"
	"github.com/incidentdesk/incidentdesk/internal/extraction"
	"github.com/incidentdesk/incidentdesk/internal/mail"
)

// Mailbox lists newly arrived messages
type Mailbox interface {
	FetchNewMessages(ctx context.Context, processedLabel string) ([]mail.Message, error)
}

// Parser extracts structured incident fields from one message
type Parser interface {
	Parse(subject, body, sender string) extraction.ExtractedFields
}

// Creator persists the incident aggregate
type Creator interface {
	Create(fields extraction.ExtractedFields, attachments []mail.Attachment) (*database.Incident, error)
}

// Dedup is the idempotency ledger surface
type Dedup interface {
	IsDuplicate(messageID string) (bool, error)
	Record(messageID string, incidentID *uint, subject, sender string, skipped bool, skipReason string) error
}

// Marker relabels a consumed source message, best-effort
type Marker interface {
	MarkConsumed(ctx context.Context, messageID string)
}

// Poller is the adaptive scheduler. During business hours every tick runs a
// cycle; off-hours a cycle runs only when the minimum gap since the last
// executed cycle has elapsed. At most one cycle runs at a time.
type Poller struct {
	mailbox        Mailbox
	dedup          Dedup
	parser         Parser
	factory        Creator
	marker         Marker
	bizHours       *BusinessHours
	processedLabel string
	offHoursMinGap time.Duration

	// cycleMu is acquired non-blocking: a tick that cannot take it is
	// dropped, never queued.
	cycleMu sync.Mutex

	// lastCycleStart is process-local state on the single scheduler
	// instance; it resets on restart. Only the ticker goroutine touches it.
	lastCycleStart time.Time

	now func() time.Time
}

// NewPoller creates the adaptive ingestion poller
func NewPoller(mailbox Mailbox, dedup Dedup, parser Parser, factory Creator, marker Marker,
	bizHours *BusinessHours, processedLabel string, offHoursMinGap time.Duration) *Poller {
	return &Poller{
		mailbox:        mailbox,
		dedup:          dedup,
		parser:         parser,
		factory:        factory,
		marker:         marker,
		bizHours:       bizHours,
		processedLabel: processedLabel,
		offHoursMinGap: offHoursMinGap,
		now:            time.Now,
	}
}

// Start begins the periodic ticking
func (p *Poller) Start(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Tick(ctx)
		case <-stop:
			log.Println("Ingestion poller stopped")
			return
		}
	}
}

// Tick evaluates eligibility and runs one fetch-and-process cycle when
// eligible. Returns true if a cycle was executed.
func (p *Poller) Tick(ctx context.Context) bool {
	now := p.now()
	if !p.eligible(now) {
		log.Printf("Scheduler throttled (off-hours, %s since last cycle)", now.Sub(p.lastCycleStart).Round(time.Second))
		return false
	}

	if !p.cycleMu.TryLock() {
		log.Println("Previous cycle still running, dropping tick")
		return false
	}
	defer p.cycleMu.Unlock()

	// The gap is measured from cycle start, whether or not it finds messages
	p.lastCycleStart = now

	p.runCycle(ctx)
	return true
}

// eligible implements the two-state check: always eligible inside business
// hours; off-hours only when the minimum gap has elapsed since the start of
// the last executed cycle (or no cycle has ever run).
func (p *Poller) eligible(now time.Time) bool {
	if p.bizHours.Contains(now) {
		return true
	}
	if p.lastCycleStart.IsZero() {
		return true
	}
	return now.Sub(p.lastCycleStart) >= p.offHoursMinGap
}

// runCycle fetches new messages and processes them sequentially, in mailbox
// order. A failure on one message never aborts the rest of the cycle.
func (p *Poller) runCycle(ctx context.Context) {
	messages, err := p.mailbox.FetchNewMessages(ctx, p.processedLabel)
	if err != nil {
		log.Printf("Failed to fetch new messages: %v", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	log.Printf("Processing %d new messages", len(messages))
	for i := range messages {
		p.processMessage(ctx, &messages[i])
	}
}

// processMessage runs the full pipeline for one message. Any unexpected
// failure is logged with the message identifier and the message is left
// unrecorded, so the next cycle retries it in full.
func (p *Poller) processMessage(ctx context.Context, msg *mail.Message) {
	key := msg.DedupKey()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic while processing message %s: %v", key, r)
		}
	}()

	// Duplicates are rejected before any AI-call budget is spent. An
	// unreadable ledger abandons the message for this cycle: creating first
	// and asking later could commit a second incident for a message that was
	// already processed.
	dup, err := p.dedup.IsDuplicate(key)
	if err != nil {
		log.Printf("Dedup lookup failed for message %s, leaving it for the next cycle: %v", key, err)
		return
	}
	if dup {
		log.Printf("Message %s already processed, skipping", key)
		return
	}

	fields := p.parser.Parse(msg.Subject, msg.Body(), msg.Sender())

	incident, err := p.factory.Create(fields, msg.Attachments)
	if err != nil {
		log.Printf("Failed to create incident for message %s: %v", key, err)
		return
	}

	if err := p.dedup.Record(key, &incident.ID, msg.Subject, msg.Sender(), false, ""); err != nil {
		log.Printf("Failed to record processed message %s: %v", key, err)
		return
	}

	p.marker.MarkConsumed(ctx, msg.ID)
}
