package db

import (
	"database/sql"
	"sort"
	"time"

	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// Inbox queue queries
const (
	sqlInsertInboxActivity = `INSERT INTO inbox_activities(id, local_actor_id, remote_actor_id, activity_uri, activity_type, activity_json, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`

	// Same atomic claim shape as the delivery queue
	sqlClaimPendingInbox = `UPDATE inbox_activities
		SET status = 'processing', claimed_at = ?
		WHERE status = 'pending' AND id IN (
			SELECT id FROM inbox_activities
			WHERE status = 'pending'
			ORDER BY created_at ASC LIMIT ?
		)
		RETURNING id, local_actor_id, remote_actor_id, activity_uri, activity_type, activity_json, status, error_message, created_at, processed_at`

	sqlMarkInboxProcessed = `UPDATE inbox_activities SET status = 'processed', processed_at = ? WHERE id = ?`

	sqlMarkInboxFailed = `UPDATE inbox_activities SET status = 'failed', error_message = ?, processed_at = ? WHERE id = ?`

	sqlResetStaleInbox = `UPDATE inbox_activities
		SET status = 'pending'
		WHERE status = 'processing' AND claimed_at <= ?`

	sqlCountProcessedInboxByURI = `SELECT COUNT(*) FROM inbox_activities
		WHERE activity_uri = ? AND status = 'processed' AND id != ?`

	sqlCountInboxByStatus = `SELECT status, COUNT(*) FROM inbox_activities GROUP BY status`

	sqlSelectInboxByStatus = `SELECT id, local_actor_id, remote_actor_id, activity_uri, activity_type, activity_json, status, error_message, created_at, processed_at
		FROM inbox_activities WHERE status = ? ORDER BY created_at DESC LIMIT ?`
)

// InsertInboxActivity queues one inbound push. Duplicate activity URIs
// get their own rows; deduplication happens at processing time.
func (db *DB) InsertInboxActivity(activity *domain.InboxActivity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertInboxActivity,
			activity.Id.String(),
			activity.LocalActorId,
			activity.RemoteActorId,
			activity.ActivityURI,
			string(activity.ActivityType),
			activity.ActivityJSON,
			activity.CreatedAt,
		)
		return err
	})
}

// ClaimPendingInbox atomically moves up to limit pending items to
// processing and returns them, oldest first.
func (db *DB) ClaimPendingInbox(limit int, now time.Time) (error, *[]domain.InboxActivity) {
	rows, err := db.db.Query(sqlClaimPendingInbox, now, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.InboxActivity
	for rows.Next() {
		err, item := scanInboxActivity(rows)
		if err != nil {
			return err, &items
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return nil, &items
}

// MarkInboxProcessed finishes an item successfully (terminal).
func (db *DB) MarkInboxProcessed(id uuid.UUID, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkInboxProcessed, now, id.String())
		return err
	})
}

// MarkInboxFailed finishes an item with an error. Inbound failures are
// terminal; the remote sender owns its own delivery retries.
func (db *DB) MarkInboxFailed(id uuid.UUID, errorMessage string, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkInboxFailed, errorMessage, now, id.String())
		return err
	})
}

// ResetStaleInbox reverts inbox items stuck in processing back to
// pending, mirroring the delivery queue stale sweep.
func (db *DB) ResetStaleInbox(staleBefore time.Time) (error, int64) {
	var reset int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlResetStaleInbox, staleBefore)
		if err != nil {
			return err
		}
		reset, err = res.RowsAffected()
		return err
	})
	return err, reset
}

// HasProcessedInboxActivity reports whether another row with the same
// activity URI was already processed, which makes ingestion idempotent
// under remote redelivery.
func (db *DB) HasProcessedInboxActivity(activityURI string, excludeId uuid.UUID) (error, bool) {
	var count int
	err := db.db.QueryRow(sqlCountProcessedInboxByURI, activityURI, excludeId.String()).Scan(&count)
	return err, count > 0
}

// CountInboxByStatus returns per-status row counts.
func (db *DB) CountInboxByStatus() (error, map[domain.InboxStatus]int) {
	rows, err := db.db.Query(sqlCountInboxByStatus)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	counts := make(map[domain.InboxStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return err, counts
		}
		counts[domain.InboxStatus(status)] = count
	}
	return rows.Err(), counts
}

// ReadInboxByStatus returns the newest items in a given state.
func (db *DB) ReadInboxByStatus(status domain.InboxStatus, limit int) (error, *[]domain.InboxActivity) {
	rows, err := db.db.Query(sqlSelectInboxByStatus, string(status), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.InboxActivity
	for rows.Next() {
		err, item := scanInboxActivity(rows)
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

func scanInboxActivity(row rowScanner) (error, *domain.InboxActivity) {
	var item domain.InboxActivity
	var idStr, statusStr, typeStr string
	var remoteActor sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(
		&idStr,
		&item.LocalActorId,
		&remoteActor,
		&item.ActivityURI,
		&typeStr,
		&item.ActivityJSON,
		&statusStr,
		&item.ErrorMessage,
		&item.CreatedAt,
		&processedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	item.Id, _ = uuid.Parse(idStr)
	item.Status = domain.InboxStatus(statusStr)
	item.ActivityType = domain.ParseActivityType(typeStr)
	item.RemoteActorId = remoteActor.String
	if processedAt.Valid {
		t := processedAt.Time
		item.ProcessedAt = &t
	}
	return nil, &item
}
