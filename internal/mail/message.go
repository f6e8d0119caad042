package mail

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Message is a normalized inbound email as returned by the mailbox adapter
type Message struct {
	// ID is the provider-side identifier, used for label mutations
	ID string
	// MessageID is the RFC 5322 Message-ID header value; may be empty
	MessageID string
	Subject   string
	From      []string
	Date      string
	TextBody  string
	HTMLBody  string

	Attachments []Attachment
}

// Attachment is a binary attachment on an inbound message
type Attachment struct {
	Filename           string
	ContentType        string
	ContentDisposition string
	Size               int64
	Content            []byte
}

// Sender returns the first From address, or empty when none is present
func (m *Message) Sender() string {
	if len(m.From) == 0 {
		return ""
	}
	return m.From[0]
}

// Body returns the plain-text body, falling back to the HTML body
func (m *Message) Body() string {
	if strings.TrimSpace(m.TextBody) != "" {
		return m.TextBody
	}
	return m.HTMLBody
}

// DedupKey returns the idempotency key for this message. The Message-ID
// header can in principle be absent; a blank value would make every such
// message collide on the same ledger row, so a content hash is synthesized
// instead to keep these messages deduplicable.
func (m *Message) DedupKey() string {
	if strings.TrimSpace(m.MessageID) != "" {
		return m.MessageID
	}
	h := sha256.New()
	h.Write([]byte(m.Sender()))
	h.Write([]byte{0})
	h.Write([]byte(m.Subject))
	h.Write([]byte{0})
	h.Write([]byte(m.Date))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
