package database

import (
	"time"

	"gorm.io/gorm"
)

// IncidentUrgency represents how urgent a reported incident is
type IncidentUrgency string

const (
	IncidentUrgencyLow      IncidentUrgency = "low"
	IncidentUrgencyMedium   IncidentUrgency = "medium"
	IncidentUrgencyHigh     IncidentUrgency = "high"
	IncidentUrgencyCritical IncidentUrgency = "critical"
)

// ValidUrgencies returns every accepted urgency value
func ValidUrgencies() []IncidentUrgency {
	return []IncidentUrgency{
		IncidentUrgencyLow,
		IncidentUrgencyMedium,
		IncidentUrgencyHigh,
		IncidentUrgencyCritical,
	}
}

// IncidentStatus represents the lifecycle status of an incident
type IncidentStatus string

const (
	IncidentStatusPending    IncidentStatus = "pending"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
)

// Incident is a durable incident record created from an ingested email
type Incident struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UUID         string          `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Title        string          `gorm:"type:varchar(255);not null" json:"title"`
	Description  string          `gorm:"type:text" json:"description"`
	ReporterName string          `gorm:"type:varchar(255)" json:"reporter_name"` // free-text handle, not necessarily a registered account
	Urgency      IncidentUrgency `gorm:"type:varchar(20);not null;default:'medium'" json:"urgency"`
	Status       IncidentStatus  `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	IsPrivate    bool            `gorm:"default:true" json:"is_private"`
	LocationID   *uint           `gorm:"index" json:"location_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Relationships
	Location    *Location    `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	Tags        []Tag        `gorm:"many2many:incident_tags;" json:"tags,omitempty"`
	Attachments []Attachment `gorm:"foreignKey:IncidentID" json:"attachments,omitempty"`
}

// BeforeCreate hook to default status and urgency
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.Status == "" {
		i.Status = IncidentStatusPending
	}
	if i.Urgency == "" {
		i.Urgency = IncidentUrgencyMedium
	}
	return nil
}

// Tag labels incidents; name is case-sensitive identity
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`

	Incidents []Incident `gorm:"many2many:incident_tags;" json:"incidents,omitempty"`
}

// Location is a known place incidents can be attributed to
type Location struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment stores an admitted binary attachment associated to an incident
type Attachment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IncidentID  uint      `gorm:"not null;index" json:"incident_id"`
	Filename    string    `gorm:"type:varchar(255);not null" json:"filename"`
	ContentType string    `gorm:"type:varchar(100)" json:"content_type"`
	Size        int64     `json:"size"`
	Content     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProcessedMessage is the durable idempotency ledger: one row per distinct
// source message identifier. Rows are created once and never updated or
// deleted by the pipeline.
type ProcessedMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"uniqueIndex;size:512;not null" json:"message_id"`
	IncidentID  *uint     `gorm:"index" json:"incident_id,omitempty"` // nil when the message was skipped
	Subject     string    `gorm:"type:varchar(512)" json:"subject"`   // raw snapshot for audit
	Sender      string    `gorm:"type:varchar(255)" json:"sender"`
	Skipped     bool      `gorm:"default:false" json:"skipped"`
	SkipReason  string    `gorm:"type:varchar(255)" json:"skip_reason"`
	ProcessedAt time.Time `json:"processed_at"`
}

// BeforeCreate hook to set ProcessedAt
func (p *ProcessedMessage) BeforeCreate(tx *gorm.DB) error {
	if p.ProcessedAt.IsZero() {
		p.ProcessedAt = time.Now()
	}
	return nil
}

// APIUsage is an append-only audit row for every AI-service invocation
// attempt. The rate limiter reconstructs its sliding window from these rows;
// they are never mutated.
type APIUsage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Caller       string    `gorm:"type:varchar(100);not null;index" json:"caller"`
	TokensUsed   int       `json:"tokens_used"`
	Success      bool      `gorm:"default:false;index" json:"success"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName overrides for explicit table naming
func (Incident) TableName() string {
	return "incidents"
}

func (Tag) TableName() string {
	return "tags"
}

func (Location) TableName() string {
	return "locations"
}

func (Attachment) TableName() string {
	return "attachments"
}

func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

func (APIUsage) TableName() string {
	return "api_usage"
}
