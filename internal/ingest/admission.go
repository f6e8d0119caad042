package ingest

import (
	"fmt"
	"strings"
)

// AttachmentPolicy decides whether an inbound attachment may be persisted
type AttachmentPolicy struct {
	allowed map[string]bool
	maxSize int64
}

// NewAttachmentPolicy creates an admission policy from an extension
// allow-list (compared case-insensitively) and a maximum size in bytes
func NewAttachmentPolicy(allowedExtensions []string, maxSize int64) *AttachmentPolicy {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &AttachmentPolicy{allowed: allowed, maxSize: maxSize}
}

// Admit returns nil when the attachment may be persisted, or the rejection
// reason. Rejections are independent per attachment and never abort the
// surrounding message.
func (p *AttachmentPolicy) Admit(filename string, size int64) error {
	ext := extensionOf(filename)
	if ext == "" {
		return fmt.Errorf("attachment %q has no extension", filename)
	}
	if !p.allowed[ext] {
		return fmt.Errorf("attachment %q has disallowed extension .%s", filename, ext)
	}
	if size > p.maxSize {
		return fmt.Errorf("attachment %q exceeds maximum size (%d > %d bytes)", filename, size, p.maxSize)
	}
	return nil
}

// extensionOf returns the lowercased final dot-suffix of a filename
func extensionOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}
