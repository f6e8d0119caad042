package ingest

import (
	"testing"

	"gorm.io/gorm"

	"github.com/incidentdesk/incidentdesk/internal/database"
	"github.com/incidentdesk/incidentdesk/internal/mail"
	"github.com/incidentdesk/incidentdesk/internal/testhelpers"
)

func newTestFactory(db *gorm.DB) *Factory {
	policy := NewAttachmentPolicy([]string{"pdf", "png", "jpg"}, 1024)
	return NewFactory(db, policy)
}

func seedLocation(t *testing.T, db *gorm.DB, name string) {
	t.Helper()
	if err := db.Create(&database.Location{Name: name}).Error; err != nil {
		t.Fatalf("failed to seed location: %v", err)
	}
}

func seedTag(t *testing.T, db *gorm.DB, name string) {
	t.Helper()
	if err := db.Create(&database.Tag{Name: name}).Error; err != nil {
		t.Fatalf("failed to seed tag: %v", err)
	}
}

func TestFactory_Create_Basic(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)

	fields := testhelpers.NewFieldsBuilder().
		WithTitle("Broken projector").
		WithUrgency(database.IncidentUrgencyHigh).
		Build()

	incident, err := factory.Create(fields, nil)
	testhelpers.AssertNoError(t, err, "creating incident")

	if incident.ID == 0 {
		t.Fatal("expected persisted incident with an id")
	}
	testhelpers.AssertEqual(t, "Broken projector", incident.Title, "title")
	testhelpers.AssertEqual(t, database.IncidentUrgencyHigh, incident.Urgency, "urgency")
	testhelpers.AssertEqual(t, database.IncidentStatusPending, incident.Status, "status")
	if incident.UUID == "" {
		t.Error("expected a generated uuid")
	}
	if !incident.IsPrivate {
		t.Error("expected incident to default to private")
	}
	if incident.LocationID != nil {
		t.Error("expected no location when none was extracted")
	}
}

func TestFactory_Create_ResolvesLocationCaseInsensitively(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)
	seedLocation(t, db, "Aula 12")

	fields := testhelpers.NewFieldsBuilder().WithLocation("aula 12").Build()

	incident, err := factory.Create(fields, nil)
	testhelpers.AssertNoError(t, err, "creating incident")

	if incident.LocationID == nil {
		t.Fatal("expected location to be resolved")
	}

	var location database.Location
	if err := db.First(&location, *incident.LocationID).Error; err != nil {
		t.Fatalf("expected location row: %v", err)
	}
	testhelpers.AssertEqual(t, "Aula 12", location.Name, "location name")
}

func TestFactory_Create_UnknownLocationLeftUnset(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)

	fields := testhelpers.NewFieldsBuilder().WithLocation("Narnia").Build()

	incident, err := factory.Create(fields, nil)
	testhelpers.AssertNoError(t, err, "creating incident")
	if incident.LocationID != nil {
		t.Error("unknown location must not invent a row")
	}

	var count int64
	db.Model(&database.Location{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no location rows created, got %d", count)
	}
}

func TestFactory_Create_Tags(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)
	seedTag(t, db, "Hardware")

	fields := testhelpers.NewFieldsBuilder().
		WithExistingTags("hardware", "network").
		WithNewTags("keyboard").
		Build()

	incident, err := factory.Create(fields, nil)
	testhelpers.AssertNoError(t, err, "creating incident")

	// "hardware" resolves to the seeded row, "network" is unresolved and
	// dropped, "keyboard" is created
	if len(incident.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", incident.Tags)
	}
	testhelpers.AssertEqual(t, "Hardware", incident.Tags[0].Name, "existing tag spelling")
	testhelpers.AssertEqual(t, "keyboard", incident.Tags[1].Name, "new tag name")

	var tagCount int64
	db.Model(&database.Tag{}).Count(&tagCount)
	if tagCount != 2 {
		t.Errorf("expected 2 tag rows, got %d", tagCount)
	}

	// Associations persisted through the join table
	var loaded database.Incident
	if err := db.Preload("Tags").First(&loaded, incident.ID).Error; err != nil {
		t.Fatalf("failed to reload incident: %v", err)
	}
	if len(loaded.Tags) != 2 {
		t.Errorf("expected 2 associated tags after reload, got %d", len(loaded.Tags))
	}
}

func TestFactory_Create_DedupesResolvedTags(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)
	seedTag(t, db, "hardware")

	fields := testhelpers.NewFieldsBuilder().
		WithExistingTags("hardware").
		WithNewTags("hardware").
		Build()

	incident, err := factory.Create(fields, nil)
	testhelpers.AssertNoError(t, err, "creating incident")

	if len(incident.Tags) != 1 {
		t.Errorf("expected tag resolved once across both lists, got %v", incident.Tags)
	}
}

func TestFactory_Create_AttachmentAdmission(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)

	fields := testhelpers.NewFieldsBuilder().Build()
	attachments := []mail.Attachment{
		{Filename: "photo.jpg", ContentType: "image/jpeg", Size: 100, Content: []byte("jpg-bytes")},
		{Filename: "malware.exe", Size: 100, Content: []byte("nope")},
		{Filename: "huge.pdf", Size: 4096, Content: []byte("too big")},
	}

	incident, err := factory.Create(fields, attachments)
	testhelpers.AssertNoError(t, err, "creating incident")

	var rows []database.Attachment
	if err := db.Where("incident_id = ?", incident.ID).Find(&rows).Error; err != nil {
		t.Fatalf("failed to load attachments: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the admitted attachment persisted, got %d", len(rows))
	}
	testhelpers.AssertEqual(t, "photo.jpg", rows[0].Filename, "attachment filename")
	testhelpers.AssertEqual(t, "image/jpeg", rows[0].ContentType, "attachment content type")
	if string(rows[0].Content) != "jpg-bytes" {
		t.Errorf("unexpected attachment content: %q", rows[0].Content)
	}
}

func TestFactory_Create_AllAttachmentsRejectedStillCreatesIncident(t *testing.T) {
	db := setupTestDB(t)
	factory := newTestFactory(db)

	fields := testhelpers.NewFieldsBuilder().Build()
	attachments := []mail.Attachment{
		{Filename: "script.sh", Size: 10},
		{Filename: "noext", Size: 10},
	}

	incident, err := factory.Create(fields, attachments)
	testhelpers.AssertNoError(t, err, "creating incident")

	var count int64
	db.Model(&database.Attachment{}).Where("incident_id = ?", incident.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected no attachments persisted, got %d", count)
	}
	if incident.ID == 0 {
		t.Error("incident itself must still be created")
	}
}
