package federation

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/ratelimit"
	"github.com/deemkeen/anancus/util"
)

// Retry backoff in minutes, indexed by attempt count.
var backoffSchedule = []int{1, 5, 15, 60, 240, 1440}

// DeliveryWorker drains the delivery queue: it claims batches of due
// pending items, dispatches each as a signed HTTP POST, and applies the
// retry/terminal-failure policy. Multiple worker instances may run
// concurrently against the same store; the atomic claim keeps them from
// double-processing.
type DeliveryWorker struct {
	database *db.DB
	conf     *util.AppConfig
	identity *Identity
	limiter  *ratelimit.Limiter
	chain    *audit.Chain
	client   *http.Client
}

// NewDeliveryWorker wires a worker against the shared store.
func NewDeliveryWorker(database *db.DB, conf *util.AppConfig, identity *Identity, limiter *ratelimit.Limiter, chain *audit.Chain) *DeliveryWorker {
	return &DeliveryWorker{
		database: database,
		conf:     conf,
		identity: identity,
		limiter:  limiter,
		chain:    chain,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Start runs the worker on a ticker until the process exits.
func (w *DeliveryWorker) Start() {
	log.Println("Starting delivery worker...")
	interval := time.Duration(w.conf.Conf.WorkerIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			w.ProcessQueue()
		}
	}()
}

// ProcessQueue claims one batch and works through it. Individual
// delivery failures never abort the batch; only the per-item status
// reflects the outcome.
func (w *DeliveryWorker) ProcessQueue() {
	now := time.Now()
	err, items := w.database.ClaimPendingDeliveries(w.conf.Conf.BatchSize, now)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to claim queue batch: %v", err)
		return
	}
	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d claimed deliveries", len(*items))

	for _, item := range *items {
		w.processItem(&item)
	}
}

func (w *DeliveryWorker) processItem(item *domain.DeliveryQueueItem) {
	if !w.allowOutbound(item.InboxURI) {
		// Throttled, not failed: push the item to the next window
		// without charging its retry budget.
		next := time.Now().Add(time.Duration(w.conf.Conf.RateWindowSec) * time.Second)
		if err := w.database.MarkDeliveryAttemptFailed(item.Id, item.RetryCount, "outbound rate limited", next, false, time.Now()); err != nil {
			log.Printf("DeliveryWorker: Failed to defer throttled item %s: %v", item.Id, err)
		}
		return
	}

	err := w.deliver(item)
	if err == nil {
		if err := w.database.MarkDelivered(item.Id, time.Now()); err != nil {
			log.Printf("DeliveryWorker: Failed to mark %s delivered: %v", item.Id, err)
			return
		}
		log.Printf("DeliveryWorker: Delivered %s to %s", item.ActivityURI, item.InboxURI)
		return
	}

	retryCount := item.RetryCount + 1
	terminal := retryCount >= w.conf.Conf.MaxRetries
	backoffMinutes := backoffSchedule[min(retryCount-1, len(backoffSchedule)-1)]
	nextRetry := time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

	if terminal {
		log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts: %v", item.InboxURI, retryCount, err)
		if _, auditErr := w.chain.Append(audit.ActorSystem, "delivery-worker", "delivery_failed", item.InboxURI, map[string]any{
			"activity_uri": item.ActivityURI,
			"retry_count":  retryCount,
			"last_error":   err.Error(),
		}); auditErr != nil {
			log.Printf("AuditChain: append failed, chain gap for delivery_failed %s: %v", item.Id, auditErr)
		}
	} else {
		log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %dm: %v", item.InboxURI, retryCount, backoffMinutes, err)
	}

	if dbErr := w.database.MarkDeliveryAttemptFailed(item.Id, retryCount, err.Error(), nextRetry, terminal, time.Now()); dbErr != nil {
		log.Printf("DeliveryWorker: Failed to record attempt for %s: %v", item.Id, dbErr)
	}
}

// deliver performs one signed POST of the canonical activity payload.
func (w *DeliveryWorker) deliver(item *domain.DeliveryQueueItem) error {
	err, activity := w.database.ReadOutboxActivityByURI(item.ActivityURI)
	if err != nil || activity == nil {
		return fmt.Errorf("failed to load outbox activity %s: %w", item.ActivityURI, err)
	}

	payload := []byte(activity.ActivityJSON)
	hash := sha256.Sum256(payload)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	privateKey, err := w.identity.PrivateKey()
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	if err := SignRequest(req, privateKey, w.identity.KeyId()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return nil
}

// ResetStale reverts deliveries stuck in processing past the stale
// horizon (a worker crashed mid-batch) so the next run can claim them.
func (w *DeliveryWorker) ResetStale() {
	staleBefore := time.Now().Add(-time.Duration(w.conf.Conf.StaleMinutes) * time.Minute)
	err, reset := w.database.ResetStaleDeliveries(staleBefore)
	if err != nil {
		log.Printf("DeliveryWorker: Stale reset failed: %v", err)
		return
	}
	if reset > 0 {
		log.Printf("DeliveryWorker: Reset %d stale deliveries to pending", reset)
		if _, auditErr := w.chain.Append(audit.ActorSystem, "delivery-worker", "stale_reset", "delivery_queue", map[string]any{
			"reset_count": reset,
		}); auditErr != nil {
			log.Printf("AuditChain: append failed, chain gap for stale_reset: %v", auditErr)
		}
	}
}

func (w *DeliveryWorker) allowOutbound(inboxURI string) bool {
	u, err := url.Parse(inboxURI)
	if err != nil {
		return true
	}
	allowed, err := w.limiter.Check("outbound:"+u.Host, w.conf.Conf.RateWindowSec, w.conf.Conf.RateMaxCount)
	if err != nil {
		log.Printf("DeliveryWorker: Rate limit check failed for %s: %v", u.Host, err)
		return true
	}
	return allowed
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
