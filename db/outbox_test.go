package db

import (
	"testing"
	"time"

	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

func testOutboxActivity(uri string, createdAt time.Time) *domain.OutboxActivity {
	return &domain.OutboxActivity{
		Id:           uuid.New(),
		LocalActorId: "node",
		ActivityURI:  uri,
		ActivityType: domain.ActivityCreate,
		ActivityJSON: `{"id":"` + uri + `","type":"Create"}`,
		CreatedAt:    createdAt,
	}
}

func TestUpsertOutboxActivityDeduplicatesByURI(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	uri := "https://node.example/activities/1"
	activity := testOutboxActivity(uri, time.Now())
	if err := db.UpsertOutboxActivity(activity); err != nil {
		t.Fatalf("UpsertOutboxActivity failed: %v", err)
	}

	// Same URI again must update in place
	updated := testOutboxActivity(uri, time.Now())
	updated.ActivityJSON = `{"id":"` + uri + `","type":"Create","updated":true}`
	if err := db.UpsertOutboxActivity(updated); err != nil {
		t.Fatalf("Second UpsertOutboxActivity failed: %v", err)
	}

	err, stored := db.ReadOutboxActivityByURI(uri)
	if err != nil {
		t.Fatalf("ReadOutboxActivityByURI failed: %v", err)
	}
	if stored.ActivityJSON != updated.ActivityJSON {
		t.Errorf("Expected updated JSON, got %s", stored.ActivityJSON)
	}

	err, recent := db.ReadRecentOutboxActivities(10)
	if err != nil {
		t.Fatalf("ReadRecentOutboxActivities failed: %v", err)
	}
	if len(*recent) != 1 {
		t.Errorf("Expected 1 activity, got %d", len(*recent))
	}
}

func TestReadRecentOutboxActivitiesOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		activity := testOutboxActivity("https://node.example/activities/"+uuid.New().String(), base.Add(time.Duration(i)*time.Minute))
		if err := db.UpsertOutboxActivity(activity); err != nil {
			t.Fatalf("UpsertOutboxActivity failed: %v", err)
		}
	}

	err, recent := db.ReadRecentOutboxActivities(2)
	if err != nil {
		t.Fatalf("ReadRecentOutboxActivities failed: %v", err)
	}
	if len(*recent) != 2 {
		t.Fatalf("Expected 2 activities, got %d", len(*recent))
	}
	if (*recent)[0].CreatedAt.Before((*recent)[1].CreatedAt) {
		t.Error("Expected newest-first order")
	}
}

func TestInsertAuditEntryRefusesEmptyChecksum(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entry := &domain.AuditLogEntry{
		Id:        uuid.New(),
		Timestamp: time.Now(),
		ActorType: "system",
		Action:    "node_started",
	}
	if err := db.InsertAuditEntry(entry); err == nil {
		t.Error("Expected error for entry without checksum")
	}
}

func TestReadLatestAuditEntry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// Empty log has no head
	err, head := db.ReadLatestAuditEntry()
	if err != nil {
		t.Fatalf("ReadLatestAuditEntry failed: %v", err)
	}
	if head != nil {
		t.Error("Expected nil head for empty log")
	}

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		entry := &domain.AuditLogEntry{
			Id:        uuid.New(),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			ActorType: "system",
			Action:    "node_started",
			Checksum:  uuid.New().String(),
		}
		if err := db.InsertAuditEntry(entry); err != nil {
			t.Fatalf("InsertAuditEntry failed: %v", err)
		}
		err, head = db.ReadLatestAuditEntry()
		if err != nil {
			t.Fatalf("ReadLatestAuditEntry failed: %v", err)
		}
		if head.Checksum != entry.Checksum {
			t.Errorf("Expected head %s, got %s", entry.Checksum, head.Checksum)
		}
	}

	err, entries := db.ReadAuditEntriesOrdered()
	if err != nil {
		t.Fatalf("ReadAuditEntriesOrdered failed: %v", err)
	}
	if len(*entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(*entries))
	}
	for i := 1; i < len(*entries); i++ {
		if (*entries)[i].Timestamp.Before((*entries)[i-1].Timestamp) {
			t.Error("Expected chain order, oldest first")
		}
	}
}
