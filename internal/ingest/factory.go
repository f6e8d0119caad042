package ingest

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incidentdesk/incidentdesk/internal/database"
	"github.com/incidentdesk/incidentdesk/internal/extraction"
	"github.com/incidentdesk/incidentdesk/internal/mail"
)

// Factory builds and persists the incident aggregate: the incident row, its
// tag associations and its admitted attachments, as one unit of work.
type Factory struct {
	db     *gorm.DB
	policy *AttachmentPolicy
}

// NewFactory creates an incident factory
func NewFactory(db *gorm.DB, policy *AttachmentPolicy) *Factory {
	return &Factory{db: db, policy: policy}
}

// Create persists a new incident from extracted fields. Everything happens in
// one transaction: if persistence fails partway, no dedup record should be
// written by the caller, so the next cycle retries the message in full.
func (f *Factory) Create(fields extraction.ExtractedFields, attachments []mail.Attachment) (*database.Incident, error) {
	var incident *database.Incident

	err := f.db.Transaction(func(tx *gorm.DB) error {
		tags, err := f.resolveTags(tx, fields)
		if err != nil {
			return err
		}

		incident = &database.Incident{
			UUID:         uuid.New().String(),
			Title:        fields.Title,
			Description:  fields.Description,
			ReporterName: fields.ReporterName,
			Urgency:      fields.Urgency,
			Status:       database.IncidentStatusPending,
			IsPrivate:    fields.IsPrivate,
			Tags:         tags,
		}

		location, err := database.GetLocationByNameCI(tx, fields.LocationName)
		if err != nil {
			return fmt.Errorf("failed to resolve location %q: %w", fields.LocationName, err)
		}
		if location != nil {
			incident.LocationID = &location.ID
		} else if fields.LocationName != "" {
			log.Printf("Location %q not found, leaving incident location unset", fields.LocationName)
		}

		if err := tx.Create(incident).Error; err != nil {
			return fmt.Errorf("failed to create incident: %w", err)
		}

		for _, att := range attachments {
			if err := f.policy.Admit(att.Filename, att.Size); err != nil {
				log.Printf("Skipping attachment: %v", err)
				continue
			}
			row := &database.Attachment{
				IncidentID:  incident.ID,
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Size:        att.Size,
				Content:     att.Content,
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to persist attachment %s: %w", att.Filename, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Created incident %s: %q (urgency %s, %d tags)",
		incident.UUID, incident.Title, incident.Urgency, len(incident.Tags))
	return incident, nil
}

// resolveTags maps the extracted tag names onto Tag rows. Existing tags are
// matched case-insensitively and unresolved entries dropped; new tags are
// created by exact name.
func (f *Factory) resolveTags(tx *gorm.DB, fields extraction.ExtractedFields) ([]database.Tag, error) {
	tags := make([]database.Tag, 0, len(fields.ExistingTags)+len(fields.NewTags))
	seen := make(map[uint]bool)

	for _, name := range fields.ExistingTags {
		tag, err := database.GetTagByNameCI(tx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up tag %q: %w", name, err)
		}
		if tag == nil {
			log.Printf("Tag %q not found, dropping", name)
			continue
		}
		if !seen[tag.ID] {
			seen[tag.ID] = true
			tags = append(tags, *tag)
		}
	}

	for _, name := range fields.NewTags {
		tag, err := database.GetOrCreateTag(tx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get or create tag %q: %w", name, err)
		}
		if !seen[tag.ID] {
			seen[tag.ID] = true
			tags = append(tags, *tag)
		}
	}

	return tags, nil
}
