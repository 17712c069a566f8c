package federation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/deemkeen/anancus/domain"
)

func inboundEnvelope(t *testing.T, raw string) *domain.Envelope {
	env, err := domain.ParseEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	return env
}

func enqueueRaw(t *testing.T, worker *InboxWorker, raw string) *domain.InboxActivity {
	env := inboundEnvelope(t, raw)
	item, err := Enqueue(worker.database, "node", env.Actor, env, []byte(raw))
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return item
}

func TestProcessQueueDispatchesToRegisteredHandler(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	worker := NewInboxWorker(database, testConf(), newTestChain(database))

	var gotActor string
	worker.Register(domain.ActivityLike, func(item *domain.InboxActivity, env *domain.Envelope) error {
		gotActor = env.Actor
		return nil
	})

	enqueueRaw(t, worker, `{
		"id": "https://remote.example/activities/like-1",
		"type": "Like",
		"actor": "https://remote.example/users/alice",
		"object": "https://node.example/activities/note-1"
	}`)

	worker.ProcessQueue()

	if gotActor != "https://remote.example/users/alice" {
		t.Errorf("Handler not invoked with envelope, got actor %q", gotActor)
	}
	err, counts := database.CountInboxByStatus()
	if err != nil {
		t.Fatalf("CountInboxByStatus failed: %v", err)
	}
	if counts[domain.InboxProcessed] != 1 {
		t.Errorf("Expected 1 processed item, counts: %v", counts)
	}
}

func TestUnregisteredTypeIsAcceptedAsNoOp(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	worker := NewInboxWorker(database, testConf(), newTestChain(database))

	enqueueRaw(t, worker, `{
		"id": "https://remote.example/activities/announce-1",
		"type": "Announce",
		"actor": "https://remote.example/users/alice",
		"object": "https://node.example/activities/note-1"
	}`)

	worker.ProcessQueue()

	err, counts := database.CountInboxByStatus()
	if err != nil {
		t.Fatalf("CountInboxByStatus failed: %v", err)
	}
	if counts[domain.InboxProcessed] != 1 {
		t.Errorf("Unhandled type must not wedge the queue, counts: %v", counts)
	}
}

func TestHandlerErrorFailsItemAndAudits(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	worker := NewInboxWorker(database, testConf(), newTestChain(database))

	worker.Register(domain.ActivityLike, func(item *domain.InboxActivity, env *domain.Envelope) error {
		return errors.New("handler exploded")
	})

	item := enqueueRaw(t, worker, `{
		"id": "https://remote.example/activities/like-2",
		"type": "Like",
		"actor": "https://remote.example/users/alice",
		"object": "https://node.example/activities/note-1"
	}`)

	worker.ProcessQueue()

	err, failed := database.ReadInboxByStatus(domain.InboxFailed, 10)
	if err != nil {
		t.Fatalf("ReadInboxByStatus failed: %v", err)
	}
	if len(*failed) != 1 {
		t.Fatalf("Expected 1 failed item, got %d", len(*failed))
	}
	if (*failed)[0].Id != item.Id {
		t.Errorf("Wrong item failed: %s", (*failed)[0].Id)
	}
	if (*failed)[0].ErrorMessage != "handler exploded" {
		t.Errorf("Expected handler error recorded, got %q", (*failed)[0].ErrorMessage)
	}

	err, entries := database.ReadAuditEntriesOrdered()
	if err != nil {
		t.Fatalf("ReadAuditEntriesOrdered failed: %v", err)
	}
	found := false
	for _, entry := range *entries {
		if entry.Action == "inbox_processing_failed" && entry.Target == item.ActivityURI {
			found = true
		}
	}
	if !found {
		t.Error("Expected an inbox_processing_failed audit entry")
	}
}

func TestRedeliveredActivitySkipsHandler(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	worker := NewInboxWorker(database, testConf(), newTestChain(database))

	var invocations int
	worker.Register(domain.ActivityLike, func(item *domain.InboxActivity, env *domain.Envelope) error {
		invocations++
		return nil
	})

	raw := `{
		"id": "https://remote.example/activities/like-3",
		"type": "Like",
		"actor": "https://remote.example/users/alice",
		"object": "https://node.example/activities/note-1"
	}`
	enqueueRaw(t, worker, raw)
	worker.ProcessQueue()

	// The remote retries delivery of the same activity
	enqueueRaw(t, worker, raw)
	worker.ProcessQueue()

	if invocations != 1 {
		t.Errorf("Expected side effects applied once, handler ran %d times", invocations)
	}
	err, counts := database.CountInboxByStatus()
	if err != nil {
		t.Fatalf("CountInboxByStatus failed: %v", err)
	}
	if counts[domain.InboxProcessed] != 2 {
		t.Errorf("Both rows must end processed, counts: %v", counts)
	}
}

func TestMalformedPayloadFailsItem(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	worker := NewInboxWorker(database, testConf(), newTestChain(database))

	// Enqueue bypassing validation, as if the row predates a format change
	env := &domain.Envelope{
		ID:    "https://remote.example/activities/broken-1",
		Type:  "Like",
		Actor: "https://remote.example/users/alice",
	}
	if _, err := Enqueue(database, "node", env.Actor, env, []byte(`{broken`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	worker.ProcessQueue()

	err, failed := database.ReadInboxByStatus(domain.InboxFailed, 10)
	if err != nil {
		t.Fatalf("ReadInboxByStatus failed: %v", err)
	}
	if len(*failed) != 1 {
		t.Fatalf("Expected malformed payload to fail, got %d failed", len(*failed))
	}
}

func TestProcessQueueHonorsBatchSize(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()
	conf := testConf()
	conf.Conf.BatchSize = 2
	worker := NewInboxWorker(database, conf, newTestChain(database))

	for i := 0; i < 3; i++ {
		enqueueRaw(t, worker, fmt.Sprintf(`{
			"id": "https://remote.example/activities/like-batch-%d",
			"type": "Like",
			"actor": "https://remote.example/users/alice",
			"object": "https://node.example/activities/note-1"
		}`, i))
	}

	worker.ProcessQueue()

	err, counts := database.CountInboxByStatus()
	if err != nil {
		t.Fatalf("CountInboxByStatus failed: %v", err)
	}
	if counts[domain.InboxProcessed] != 2 {
		t.Errorf("Expected 2 processed in first batch, counts: %v", counts)
	}
	if counts[domain.InboxPending] != 1 {
		t.Errorf("Expected 1 left pending, counts: %v", counts)
	}
}
