package federation

import (
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
)

// Handler applies the side effects of one inbound activity. Handlers
// must be idempotent with respect to redelivered activity URIs; the
// worker additionally skips items whose URI was already processed.
type Handler func(item *domain.InboxActivity, env *domain.Envelope) error

// InboxWorker drains the inbound queue, dispatching each claimed item
// to the handler registered for its activity type. Handler failures are
// terminal for the item and never fatal to the loop.
type InboxWorker struct {
	database *db.DB
	conf     *util.AppConfig
	chain    *audit.Chain
	handlers map[domain.ActivityType]Handler
}

// NewInboxWorker returns a worker with an empty registry; unregistered
// types fall through to a trivial success so unsupported activities
// never wedge the queue.
func NewInboxWorker(database *db.DB, conf *util.AppConfig, chain *audit.Chain) *InboxWorker {
	return &InboxWorker{
		database: database,
		conf:     conf,
		chain:    chain,
		handlers: make(map[domain.ActivityType]Handler),
	}
}

// Register installs the handler for an activity type, replacing any
// previous one. Registering for ActivityUnknown overrides the default
// accept-and-ignore fallback.
func (w *InboxWorker) Register(t domain.ActivityType, h Handler) {
	w.handlers[t] = h
}

// Enqueue records one inbound push as pending work. Duplicate
// deliveries of the same activity URI each get their own row; the
// worker reconciles them at processing time.
func Enqueue(database *db.DB, localActorId, remoteActorId string, env *domain.Envelope, raw []byte) (*domain.InboxActivity, error) {
	item := &domain.InboxActivity{
		Id:            uuid.New(),
		LocalActorId:  localActorId,
		RemoteActorId: remoteActorId,
		ActivityURI:   env.ID,
		ActivityType:  env.ActivityType(),
		ActivityJSON:  string(raw),
		Status:        domain.InboxPending,
		CreatedAt:     time.Now(),
	}
	if err := database.InsertInboxActivity(item); err != nil {
		return nil, fmt.Errorf("failed to enqueue inbound activity: %w", err)
	}
	return item, nil
}

// Start runs the worker on a ticker until the process exits.
func (w *InboxWorker) Start() {
	log.Println("Starting inbox worker...")
	interval := time.Duration(w.conf.Conf.WorkerIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			w.ProcessQueue()
		}
	}()
}

// ProcessQueue claims one batch of pending inbound activities and
// applies each through its handler, oldest first.
func (w *InboxWorker) ProcessQueue() {
	err, items := w.database.ClaimPendingInbox(w.conf.Conf.BatchSize, time.Now())
	if err != nil {
		log.Printf("InboxWorker: Failed to claim queue batch: %v", err)
		return
	}
	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("InboxWorker: Processing %d claimed activities", len(*items))

	for _, item := range *items {
		w.processItem(&item)
	}
}

func (w *InboxWorker) processItem(item *domain.InboxActivity) {
	// Idempotent ingestion: a redelivered activity URI that already
	// went through is acknowledged without re-applying side effects.
	err, seen := w.database.HasProcessedInboxActivity(item.ActivityURI, item.Id)
	if err != nil {
		log.Printf("InboxWorker: Dedupe check failed for %s: %v", item.ActivityURI, err)
	} else if seen {
		log.Printf("InboxWorker: Activity %s already processed, skipping", item.ActivityURI)
		if err := w.database.MarkInboxProcessed(item.Id, time.Now()); err != nil {
			log.Printf("InboxWorker: Failed to mark duplicate %s processed: %v", item.Id, err)
		}
		return
	}

	env, parseErr := domain.ParseEnvelope([]byte(item.ActivityJSON))
	if parseErr != nil {
		w.fail(item, parseErr)
		return
	}

	handler, ok := w.handlers[item.ActivityType]
	if !ok {
		handler = w.handlers[domain.ActivityUnknown]
	}
	if handler == nil {
		// No fallback registered: accept trivially so unsupported
		// types don't pile up as failures.
		log.Printf("InboxWorker: No handler for %s, accepting %s as no-op", item.ActivityType, item.ActivityURI)
		if err := w.database.MarkInboxProcessed(item.Id, time.Now()); err != nil {
			log.Printf("InboxWorker: Failed to mark %s processed: %v", item.Id, err)
		}
		return
	}

	if err := handler(item, env); err != nil {
		w.fail(item, err)
		return
	}

	if err := w.database.MarkInboxProcessed(item.Id, time.Now()); err != nil {
		log.Printf("InboxWorker: Failed to mark %s processed: %v", item.Id, err)
		return
	}
	log.Printf("InboxWorker: Processed %s (%s)", item.ActivityURI, item.ActivityType)
}

// fail marks an inbound item terminally failed. Remote senders own
// their own delivery retries, so there is no requeue here.
func (w *InboxWorker) fail(item *domain.InboxActivity, cause error) {
	log.Printf("InboxWorker: Failed to process %s (%s): %v", item.ActivityURI, item.ActivityType, cause)
	if err := w.database.MarkInboxFailed(item.Id, cause.Error(), time.Now()); err != nil {
		log.Printf("InboxWorker: Failed to mark %s failed: %v", item.Id, err)
	}
	if _, auditErr := w.chain.Append(audit.ActorRemote, item.RemoteActorId, "inbox_processing_failed", item.ActivityURI, map[string]any{
		"activity_type": string(item.ActivityType),
		"error":         cause.Error(),
	}); auditErr != nil {
		log.Printf("AuditChain: append failed, chain gap for inbox failure %s: %v", item.Id, auditErr)
	}
}

// ResetStale reverts inbound items stuck in processing past the stale
// horizon back to pending.
func (w *InboxWorker) ResetStale() {
	staleBefore := time.Now().Add(-time.Duration(w.conf.Conf.StaleMinutes) * time.Minute)
	err, reset := w.database.ResetStaleInbox(staleBefore)
	if err != nil {
		log.Printf("InboxWorker: Stale reset failed: %v", err)
		return
	}
	if reset > 0 {
		log.Printf("InboxWorker: Reset %d stale activities to pending", reset)
	}
}
