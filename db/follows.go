package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// FollowDirection selects one of the two follow edge tables.
type FollowDirection string

const (
	// Followers holds remote actors following a local actor.
	Followers FollowDirection = "followers"
	// Following holds remote actors a local actor follows.
	Following FollowDirection = "following"
)

const sqlUpsertFollowEdge = `INSERT INTO %s(id, local_actor_id, remote_actor_id, inbox_uri, activity_uri, status, created_at, accepted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(local_actor_id, remote_actor_id) DO UPDATE SET
		activity_uri = excluded.activity_uri,
		inbox_uri = excluded.inbox_uri,
		status = excluded.status,
		accepted_at = CASE
			WHEN excluded.status = 'accepted' AND accepted_at IS NULL THEN excluded.accepted_at
			ELSE accepted_at
		END`

const sqlUpdateFollowEdgeStatus = `UPDATE %s SET
		status = ?,
		accepted_at = CASE
			WHEN ? = 'accepted' AND accepted_at IS NULL THEN ?
			ELSE accepted_at
		END
	WHERE local_actor_id = ? AND remote_actor_id = ?`

const sqlSelectFollowEdge = `SELECT id, local_actor_id, remote_actor_id, inbox_uri, activity_uri, status, created_at, accepted_at
	FROM %s WHERE local_actor_id = ? AND remote_actor_id = ?`

const sqlSelectFollowEdgeByActivityURI = `SELECT id, local_actor_id, remote_actor_id, inbox_uri, activity_uri, status, created_at, accepted_at
	FROM %s WHERE activity_uri = ?`

const sqlListFollowEdges = `SELECT id, local_actor_id, remote_actor_id, inbox_uri, activity_uri, status, created_at, accepted_at
	FROM %s WHERE local_actor_id = ? %s ORDER BY created_at ASC LIMIT ? OFFSET ?`

const sqlCountFollowEdges = `SELECT COUNT(*) FROM %s WHERE local_actor_id = ? %s`

const sqlDeleteFollowEdge = `DELETE FROM %s WHERE local_actor_id = ? AND remote_actor_id = ?`

const sqlSelectAcceptedFollowerInboxes = `SELECT DISTINCT inbox_uri FROM followers
	WHERE local_actor_id = ? AND status = 'accepted' ORDER BY inbox_uri`

// UpsertFollowEdge inserts or updates the single edge row for the
// (local, remote) pair. A repeated Follow with a fresh activity URI
// touches the existing row instead of duplicating it. Transitioning
// away from accepted keeps accepted_at as a trace that the edge was
// once accepted.
func (db *DB) UpsertFollowEdge(dir FollowDirection, edge *domain.FollowEdge) error {
	var acceptedAt any
	if edge.Status == domain.FollowAccepted {
		now := time.Now()
		if edge.AcceptedAt != nil {
			now = *edge.AcceptedAt
		}
		acceptedAt = now
	}
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(fmt.Sprintf(sqlUpsertFollowEdge, dir),
			edge.Id.String(),
			edge.LocalActorId,
			edge.RemoteActorId,
			edge.InboxURI,
			edge.ActivityURI,
			string(edge.Status),
			edge.CreatedAt,
			acceptedAt,
		)
		return err
	})
}

// UpdateFollowEdgeStatus moves an existing edge to the given status.
func (db *DB) UpdateFollowEdgeStatus(dir FollowDirection, localActorId, remoteActorId string, status domain.FollowStatus, acceptedAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(fmt.Sprintf(sqlUpdateFollowEdgeStatus, dir),
			string(status), string(status), acceptedAt, localActorId, remoteActorId)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// ReadFollowEdge returns the edge for the pair, or nil if none exists.
func (db *DB) ReadFollowEdge(dir FollowDirection, localActorId, remoteActorId string) (error, *domain.FollowEdge) {
	row := db.db.QueryRow(fmt.Sprintf(sqlSelectFollowEdge, dir), localActorId, remoteActorId)
	return scanFollowEdge(row)
}

// ReadFollowEdgeByActivityURI looks an edge up by the Follow activity
// that created it (how Accept/Reject/Undo reference their target).
func (db *DB) ReadFollowEdgeByActivityURI(dir FollowDirection, activityURI string) (error, *domain.FollowEdge) {
	row := db.db.QueryRow(fmt.Sprintf(sqlSelectFollowEdgeByActivityURI, dir), activityURI)
	return scanFollowEdge(row)
}

// CountFollowEdges counts edges for an actor, optionally by status.
func (db *DB) CountFollowEdges(dir FollowDirection, localActorId string, status domain.FollowStatus) (error, int) {
	query, args := followFilter(sqlCountFollowEdges, dir, localActorId, status)
	var count int
	err := db.db.QueryRow(query, args...).Scan(&count)
	return err, count
}

// ListFollowEdges pages through edges for an actor, oldest first.
// An empty status lists all edges.
func (db *DB) ListFollowEdges(dir FollowDirection, localActorId string, status domain.FollowStatus, limit, offset int) (error, *[]domain.FollowEdge) {
	query, args := followFilter(sqlListFollowEdges, dir, localActorId, status)
	args = append(args, limit, offset)
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var edges []domain.FollowEdge
	for rows.Next() {
		err, edge := scanFollowEdge(rows)
		if err != nil {
			return err, &edges
		}
		edges = append(edges, *edge)
	}
	if err = rows.Err(); err != nil {
		return err, &edges
	}
	return nil, &edges
}

// DeleteFollowEdge removes the edge entirely (explicit unfollow).
func (db *DB) DeleteFollowEdge(dir FollowDirection, localActorId, remoteActorId string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(fmt.Sprintf(sqlDeleteFollowEdge, dir), localActorId, remoteActorId)
		return err
	})
}

// ReadAcceptedFollowerInboxes returns the distinct inbox URIs of all
// accepted followers of an actor. Followers sharing one inbox collapse
// to a single entry, which is what keeps fan-out free of duplicate
// deliveries.
func (db *DB) ReadAcceptedFollowerInboxes(localActorId string) (error, []string) {
	rows, err := db.db.Query(sqlSelectAcceptedFollowerInboxes, localActorId)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var inboxes []string
	for rows.Next() {
		var inbox string
		if err := rows.Scan(&inbox); err != nil {
			return err, inboxes
		}
		inboxes = append(inboxes, inbox)
	}
	return rows.Err(), inboxes
}

func followFilter(template string, dir FollowDirection, localActorId string, status domain.FollowStatus) (string, []any) {
	args := []any{localActorId}
	filter := ""
	if status != "" {
		filter = "AND status = ?"
		args = append(args, string(status))
	}
	return fmt.Sprintf(template, dir, filter), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFollowEdge(row rowScanner) (error, *domain.FollowEdge) {
	var edge domain.FollowEdge
	var idStr, statusStr string
	var acceptedAt sql.NullTime
	err := row.Scan(
		&idStr,
		&edge.LocalActorId,
		&edge.RemoteActorId,
		&edge.InboxURI,
		&edge.ActivityURI,
		&statusStr,
		&edge.CreatedAt,
		&acceptedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	edge.Id, _ = uuid.Parse(idStr)
	edge.Status = domain.FollowStatus(statusStr)
	if acceptedAt.Valid {
		t := acceptedAt.Time
		edge.AcceptedAt = &t
	}
	return nil, &edge
}
