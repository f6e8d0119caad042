// Package testhelpers provides reusable testing utilities:
// sample data builders and assertion helpers.
package testhelpers

import (
	"strings"
	"testing"

	"github.com/incidentdesk/incidentdesk/internal/database"
	"github.com/incidentdesk/incidentdesk/internal/extraction"
	"github.com/incidentdesk/incidentdesk/internal/mail"
)

// ========================================
// Sample Data Builders
// ========================================

// MessageBuilder builds mail.Message instances for testing
type MessageBuilder struct {
	msg mail.Message
}

// NewMessageBuilder creates a message builder with defaults
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		msg: mail.Message{
			ID:        "provider-id-1",
			MessageID: "<test-1@example.org>",
			Subject:   "Broken projector in room 12",
			From:      []string{"reporter@example.org"},
			Date:      "Mon, 02 Jun 2025 10:00:00 +0200",
			TextBody:  "The projector in room 12 stopped working this morning.",
		},
	}
}

// WithID sets the provider-side identifier
func (b *MessageBuilder) WithID(id string) *MessageBuilder {
	b.msg.ID = id
	return b
}

// WithMessageID sets the Message-ID header value
func (b *MessageBuilder) WithMessageID(id string) *MessageBuilder {
	b.msg.MessageID = id
	return b
}

// WithSubject sets the subject
func (b *MessageBuilder) WithSubject(subject string) *MessageBuilder {
	b.msg.Subject = subject
	return b
}

// WithFrom sets the outer sender addresses
func (b *MessageBuilder) WithFrom(addrs ...string) *MessageBuilder {
	b.msg.From = addrs
	return b
}

// WithTextBody sets the plain-text body
func (b *MessageBuilder) WithTextBody(body string) *MessageBuilder {
	b.msg.TextBody = body
	return b
}

// WithAttachment adds an attachment
func (b *MessageBuilder) WithAttachment(filename string, content []byte) *MessageBuilder {
	b.msg.Attachments = append(b.msg.Attachments, mail.Attachment{
		Filename: filename,
		Size:     int64(len(content)),
		Content:  content,
	})
	return b
}

// Build returns the constructed message
func (b *MessageBuilder) Build() mail.Message {
	return b.msg
}

// FieldsBuilder builds extraction.ExtractedFields instances for testing
type FieldsBuilder struct {
	fields extraction.ExtractedFields
}

// NewFieldsBuilder creates a fields builder with defaults
func NewFieldsBuilder() *FieldsBuilder {
	return &FieldsBuilder{
		fields: extraction.ExtractedFields{
			Title:        "Broken projector",
			Description:  "The projector stopped working.",
			ReporterName: "reporter@example.org",
			Urgency:      database.IncidentUrgencyMedium,
			IsPrivate:    true,
		},
	}
}

// WithTitle sets the title
func (b *FieldsBuilder) WithTitle(title string) *FieldsBuilder {
	b.fields.Title = title
	return b
}

// WithUrgency sets the urgency
func (b *FieldsBuilder) WithUrgency(urgency database.IncidentUrgency) *FieldsBuilder {
	b.fields.Urgency = urgency
	return b
}

// WithLocation sets the location name
func (b *FieldsBuilder) WithLocation(name string) *FieldsBuilder {
	b.fields.LocationName = name
	return b
}

// WithExistingTags sets the existing tag list
func (b *FieldsBuilder) WithExistingTags(tags ...string) *FieldsBuilder {
	b.fields.ExistingTags = tags
	return b
}

// WithNewTags sets the new tag list
func (b *FieldsBuilder) WithNewTags(tags ...string) *FieldsBuilder {
	b.fields.NewTags = tags
	return b
}

// Build returns the constructed fields
func (b *FieldsBuilder) Build() extraction.ExtractedFields {
	return b.fields
}

// ========================================
// Assertion Helpers
// ========================================

// AssertEqual checks equality with a helpful error message
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertError checks that an error occurred
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}

// AssertNoError checks that no error occurred
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertContains checks if string contains substring
func AssertContains(t *testing.T, s, substr string, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: expected %q to contain %q", msg, s, substr)
	}
}
