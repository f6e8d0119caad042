package extraction

import (
	"strings"

	"github.com/incidentdesk/incidentdesk/internal/database"
)

// replyPrefixes are the known reply/forward subject prefixes, stripped
// iteratively in any order and any repetition
var replyPrefixes = []string{"fwd:", "re:", "rv:"}

// Fallback derives incident fields without any network I/O. It is the pure,
// deterministic path used when the AI service is rate-limited or unusable.
func Fallback(subject, body, sender string) ExtractedFields {
	return ExtractedFields{
		Title:        CleanSubject(subject),
		Description:  body,
		ReporterName: sender,
		Urgency:      database.IncidentUrgencyMedium,
		IsPrivate:    true, // forwarded institutional email is private by default
	}
}

// CleanSubject strips reply/forward prefixes from a subject line until none
// remain, trimming whitespace between passes
func CleanSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := false
		lower := strings.ToLower(s)
		for _, prefix := range replyPrefixes {
			if strings.HasPrefix(lower, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

// Normalize coerces extractor output into the schema-valid contract. It is
// applied uniformly to both the AI and the fallback path.
func Normalize(f ExtractedFields) ExtractedFields {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		f.Title = TitlePlaceholder
	}

	if strings.TrimSpace(f.Description) == "" {
		f.Description = DescriptionPlaceholder
	}

	f.ReporterName = strings.TrimSpace(f.ReporterName)
	f.LocationName = strings.TrimSpace(f.LocationName)
	f.Urgency = normalizeUrgency(string(f.Urgency))
	f.ExistingTags = dedupeTags(f.ExistingTags)
	f.NewTags = dedupeTags(f.NewTags)

	return f
}

// normalizeUrgency coerces a free-form urgency value into the enum,
// defaulting to medium for anything unrecognized
func normalizeUrgency(value string) database.IncidentUrgency {
	lowered := strings.ToLower(strings.TrimSpace(value))
	for _, u := range database.ValidUrgencies() {
		if lowered == string(u) {
			return u
		}
	}
	return database.IncidentUrgencyMedium
}

// dedupeTags drops blank entries and case-insensitive duplicates, keeping
// the first spelling seen
func dedupeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, trimmed)
	}
	return out
}
