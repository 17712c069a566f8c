package db

import (
	"database/sql"
	"sort"
	"time"

	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// Delivery queue queries
const (
	sqlUpsertDeliveryItem = `INSERT INTO delivery_queue(id, activity_uri, inbox_uri, status, retry_count, last_error, next_retry_at, created_at)
		VALUES (?, ?, ?, 'pending', 0, '', ?, ?)
		ON CONFLICT(activity_uri, inbox_uri) DO NOTHING`

	// Claim is a single conditional update so that two concurrent
	// workers can never grab the same row. The subselect picks the
	// oldest due pending rows; the outer status guard re-checks under
	// the write lock.
	sqlClaimPendingDeliveries = `UPDATE delivery_queue
		SET status = 'processing', last_attempt_at = ?
		WHERE status = 'pending' AND id IN (
			SELECT id FROM delivery_queue
			WHERE status = 'pending' AND next_retry_at <= ?
			ORDER BY created_at ASC LIMIT ?
		)
		RETURNING id, activity_uri, inbox_uri, status, retry_count, last_error, next_retry_at, last_attempt_at, delivered_at, created_at`

	sqlMarkDelivered = `UPDATE delivery_queue SET status = 'delivered', delivered_at = ?, last_attempt_at = ? WHERE id = ?`

	sqlMarkDeliveryAttemptFailed = `UPDATE delivery_queue
		SET status = ?, retry_count = ?, last_error = ?, next_retry_at = ?, last_attempt_at = ?
		WHERE id = ?`

	sqlResetStaleDeliveries = `UPDATE delivery_queue
		SET status = 'pending'
		WHERE status = 'processing' AND last_attempt_at <= ?`

	sqlRequeueFailedDelivery = `UPDATE delivery_queue
		SET status = 'pending', retry_count = 0, last_error = '', next_retry_at = ?
		WHERE id = ? AND status = 'failed'`

	sqlSelectDeliveriesByStatus = `SELECT id, activity_uri, inbox_uri, status, retry_count, last_error, next_retry_at, last_attempt_at, delivered_at, created_at
		FROM delivery_queue WHERE status = ? ORDER BY created_at DESC LIMIT ?`

	sqlCountDeliveriesByStatus = `SELECT status, COUNT(*) FROM delivery_queue GROUP BY status`
)

// UpsertDeliveryItem queues one delivery for the (activity, inbox)
// pair. Re-running fan-out is a no-op for pairs already queued.
func (db *DB) UpsertDeliveryItem(activityURI, inboxURI string, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertDeliveryItem, uuid.New().String(), activityURI, inboxURI, now, now)
		return err
	})
}

// ClaimPendingDeliveries atomically moves up to limit due pending items
// to processing and returns them, oldest first.
func (db *DB) ClaimPendingDeliveries(limit int, now time.Time) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlClaimPendingDeliveries, now, now, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		err, item := scanDeliveryItem(rows)
		if err != nil {
			return err, &items
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	// RETURNING order is unspecified
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return nil, &items
}

// MarkDelivered finishes an item successfully (terminal).
func (db *DB) MarkDelivered(id uuid.UUID, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkDelivered, now, now, id.String())
		return err
	})
}

// MarkDeliveryAttemptFailed records a failed attempt. Non-terminal
// failures go back to pending with the next retry time; once the retry
// budget is exhausted the item moves to failed and is excluded from
// future claims.
func (db *DB) MarkDeliveryAttemptFailed(id uuid.UUID, retryCount int, lastError string, nextRetryAt time.Time, terminal bool, now time.Time) error {
	status := domain.DeliveryPending
	if terminal {
		status = domain.DeliveryFailed
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkDeliveryAttemptFailed,
			string(status), retryCount, lastError, nextRetryAt, now, id.String())
		return err
	})
}

// RequeueFailedDelivery gives a terminally failed item a fresh retry
// budget. Returns sql.ErrNoRows if the item is not in failed state.
func (db *DB) RequeueFailedDelivery(id uuid.UUID, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlRequeueFailedDelivery, now, id.String())
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ResetStaleDeliveries reverts items stuck in processing (a worker
// crashed or was killed mid-batch) back to pending so they become
// claimable again. Returns how many rows were reset.
func (db *DB) ResetStaleDeliveries(staleBefore time.Time) (error, int64) {
	var reset int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlResetStaleDeliveries, staleBefore)
		if err != nil {
			return err
		}
		reset, err = res.RowsAffected()
		return err
	})
	return err, reset
}

// ReadDeliveriesByStatus returns the newest items in a given state,
// for health queries and the operator console.
func (db *DB) ReadDeliveriesByStatus(status domain.DeliveryStatus, limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectDeliveriesByStatus, string(status), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		err, item := scanDeliveryItem(rows)
		if err != nil {
			return err, &items
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

// CountDeliveriesByStatus returns per-status row counts.
func (db *DB) CountDeliveriesByStatus() (error, map[domain.DeliveryStatus]int) {
	rows, err := db.db.Query(sqlCountDeliveriesByStatus)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	counts := make(map[domain.DeliveryStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return err, counts
		}
		counts[domain.DeliveryStatus(status)] = count
	}
	return rows.Err(), counts
}

func scanDeliveryItem(row rowScanner) (error, *domain.DeliveryQueueItem) {
	var item domain.DeliveryQueueItem
	var idStr, statusStr string
	var lastAttemptAt, deliveredAt sql.NullTime
	err := row.Scan(
		&idStr,
		&item.ActivityURI,
		&item.InboxURI,
		&statusStr,
		&item.RetryCount,
		&item.LastError,
		&item.NextRetryAt,
		&lastAttemptAt,
		&deliveredAt,
		&item.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	item.Id, _ = uuid.Parse(idStr)
	item.Status = domain.DeliveryStatus(statusStr)
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		item.LastAttemptAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		item.DeliveredAt = &t
	}
	return nil, &item
}
