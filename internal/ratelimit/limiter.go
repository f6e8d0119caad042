// Package ratelimit implements sliding-window admission control over AI
// calls. The window is reconstructed from the append-only api_usage table,
// so a call made 61 minutes ago stops counting without any reset event.
package ratelimit

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/incidentdesk/incidentdesk/internal/database"
)

// AlertCaller is the reserved caller name for alert sentinel rows. The
// presence of a sentinel within the trailing hour means "already alerted".
const AlertCaller = "rate_limiter_alert"

// window is the trailing admission interval
const window = time.Hour

// EmailSender delivers one operational alert email
type EmailSender interface {
	IsConfigured() bool
	Send(subject, body string, recipients []string) error
}

// SlackSender mirrors one operational alert to Slack
type SlackSender interface {
	IsConfigured() bool
	Send(subject, body string) error
}

// Limiter gates AI calls against a configured hourly limit
type Limiter struct {
	db          *gorm.DB
	hourlyLimit int
	recipients  []string
	mailer      EmailSender
	slack       SlackSender
	now         func() time.Time
}

// New creates a rate limiter backed by the given database
func New(db *gorm.DB, hourlyLimit int, recipients []string, mailer EmailSender, slack SlackSender) *Limiter {
	return &Limiter{
		db:          db,
		hourlyLimit: hourlyLimit,
		recipients:  recipients,
		mailer:      mailer,
		slack:       slack,
		now:         time.Now,
	}
}

// CanCall reports whether another AI call is admitted right now. It counts
// successful calls within the trailing hour; at the limit it triggers the
// deduplicated alert path and denies admission.
func (l *Limiter) CanCall() bool {
	since := l.now().Add(-window)

	count, err := database.CountSuccessfulCallsSince(l.db, since, AlertCaller)
	if err != nil {
		log.Printf("Rate limiter: failed to count API usage, denying call: %v", err)
		return false
	}

	if count < int64(l.hourlyLimit) {
		return true
	}

	l.maybeAlert(since, count)
	return false
}

// RegisterCall appends one audit row for an AI-service invocation attempt.
// It is fire-and-forget bookkeeping: failures are logged, never returned,
// and an already admitted in-flight call is never revoked.
func (l *Limiter) RegisterCall(caller string, success bool, tokensUsed int, errorMessage string) {
	row := &database.APIUsage{
		Caller:       caller,
		TokensUsed:   tokensUsed,
		Success:      success,
		ErrorMessage: errorMessage,
	}
	if err := l.db.Create(row).Error; err != nil {
		log.Printf("Rate limiter: failed to record API usage for %s: %v", caller, err)
	}
}

// maybeAlert sends at most one alert per rolling hour. The sentinel row is
// written for every attempt so that delivery failures do not retrigger it.
func (l *Limiter) maybeAlert(since time.Time, count int64) {
	alerted, err := database.HasCallerRowSince(l.db, AlertCaller, since)
	if err != nil {
		log.Printf("Rate limiter: failed to check alert sentinel: %v", err)
		return
	}
	if alerted {
		return
	}

	if len(l.recipients) == 0 || l.mailer == nil || !l.mailer.IsConfigured() {
		log.Printf("Rate limiter: hourly limit reached (%d calls) but no alert recipient configured, skipping alert", count)
		return
	}

	subject := "AI call rate limit reached"
	body := fmt.Sprintf(
		"The incident ingestion pipeline reached its hourly AI call limit (%d calls in the last hour, limit %d).\n"+
			"Further messages will be processed with fallback extraction until the window slides past older calls.",
		count, l.hourlyLimit)

	errMsg := ""
	if err := l.mailer.Send(subject, body, l.recipients); err != nil {
		log.Printf("Rate limiter: failed to send alert email: %v", err)
		errMsg = err.Error()
	}
	if l.slack != nil && l.slack.IsConfigured() {
		if err := l.slack.Send(subject, body); err != nil {
			log.Printf("Rate limiter: failed to send Slack alert: %v", err)
		}
	}

	l.RegisterCall(AlertCaller, errMsg == "", 0, errMsg)
}
