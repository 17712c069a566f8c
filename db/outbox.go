package db

import (
	"database/sql"

	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// Outbox queries
const (
	sqlUpsertOutboxActivity = `INSERT INTO outbox_activities(id, local_actor_id, activity_uri, activity_type, activity_json, object_uri, object_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_uri) DO UPDATE SET
			activity_type = excluded.activity_type,
			activity_json = excluded.activity_json,
			object_uri = excluded.object_uri,
			object_type = excluded.object_type`

	sqlSelectOutboxActivityByURI = `SELECT id, local_actor_id, activity_uri, activity_type, activity_json, object_uri, object_type, created_at
		FROM outbox_activities WHERE activity_uri = ?`

	sqlSelectRecentOutboxActivities = `SELECT id, local_actor_id, activity_uri, activity_type, activity_json, object_uri, object_type, created_at
		FROM outbox_activities ORDER BY created_at DESC LIMIT ?`
)

// UpsertOutboxActivity records the canonical copy of a locally
// originated activity. Re-publishing the same activity URI updates the
// payload and object fields in place, which is how Update activities
// reusing the id pattern get edit-in-place semantics.
func (db *DB) UpsertOutboxActivity(activity *domain.OutboxActivity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertOutboxActivity,
			activity.Id.String(),
			activity.LocalActorId,
			activity.ActivityURI,
			string(activity.ActivityType),
			activity.ActivityJSON,
			activity.ObjectURI,
			activity.ObjectType,
			activity.CreatedAt,
		)
		return err
	})
}

// ReadOutboxActivityByURI returns the stored activity, or nil.
func (db *DB) ReadOutboxActivityByURI(uri string) (error, *domain.OutboxActivity) {
	row := db.db.QueryRow(sqlSelectOutboxActivityByURI, uri)
	return scanOutboxActivity(row)
}

// ReadRecentOutboxActivities returns the newest local activities.
func (db *DB) ReadRecentOutboxActivities(limit int) (error, *[]domain.OutboxActivity) {
	rows, err := db.db.Query(sqlSelectRecentOutboxActivities, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var activities []domain.OutboxActivity
	for rows.Next() {
		err, activity := scanOutboxActivity(rows)
		if err != nil {
			return err, &activities
		}
		activities = append(activities, *activity)
	}
	if err = rows.Err(); err != nil {
		return err, &activities
	}
	return nil, &activities
}

func scanOutboxActivity(row rowScanner) (error, *domain.OutboxActivity) {
	var activity domain.OutboxActivity
	var idStr, typeStr string
	err := row.Scan(
		&idStr,
		&activity.LocalActorId,
		&activity.ActivityURI,
		&typeStr,
		&activity.ActivityJSON,
		&activity.ObjectURI,
		&activity.ObjectType,
		&activity.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	activity.Id, _ = uuid.Parse(idStr)
	activity.ActivityType = domain.ParseActivityType(typeStr)
	return nil, &activity
}
