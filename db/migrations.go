package db

import (
	"database/sql"
	"log"
)

// Schema for the federation pipeline tables
const (
	// Remote actors that follow a local actor. One row per
	// (local, remote) pair; re-sent Follow activities upsert.
	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		id TEXT NOT NULL PRIMARY KEY,
		local_actor_id TEXT NOT NULL,
		remote_actor_id TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		activity_uri TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		accepted_at TIMESTAMP,
		UNIQUE(local_actor_id, remote_actor_id)
	)`

	// Remote actors a local actor follows; same shape, other direction.
	sqlCreateFollowingTable = `CREATE TABLE IF NOT EXISTS following (
		id TEXT NOT NULL PRIMARY KEY,
		local_actor_id TEXT NOT NULL,
		remote_actor_id TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		activity_uri TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		accepted_at TIMESTAMP,
		UNIQUE(local_actor_id, remote_actor_id)
	)`

	sqlCreateFollowIndices = `
		CREATE INDEX IF NOT EXISTS idx_followers_local ON followers(local_actor_id, status);
		CREATE INDEX IF NOT EXISTS idx_following_local ON following(local_actor_id, status);
	`

	// Canonical copies of locally originated activities
	sqlCreateOutboxTable = `CREATE TABLE IF NOT EXISTS outbox_activities (
		id TEXT NOT NULL PRIMARY KEY,
		local_actor_id TEXT NOT NULL,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		object_uri TEXT,
		object_type TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateOutboxIndices = `
		CREATE INDEX IF NOT EXISTS idx_outbox_actor ON outbox_activities(local_actor_id);
		CREATE INDEX IF NOT EXISTS idx_outbox_created_at ON outbox_activities(created_at DESC);
	`

	// Delivery queue; terminal rows are kept for debugging
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER DEFAULT 0,
		last_error TEXT DEFAULT '',
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_attempt_at TIMESTAMP,
		delivered_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(activity_uri, inbox_uri)
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_claim ON delivery_queue(status, next_retry_at, created_at);
	`

	// Inbound activities awaiting processing
	sqlCreateInboxTable = `CREATE TABLE IF NOT EXISTS inbox_activities (
		id TEXT NOT NULL PRIMARY KEY,
		local_actor_id TEXT NOT NULL,
		remote_actor_id TEXT,
		activity_uri TEXT NOT NULL,
		activity_type TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		claimed_at TIMESTAMP,
		processed_at TIMESTAMP
	)`

	sqlCreateInboxIndices = `
		CREATE INDEX IF NOT EXISTS idx_inbox_claim ON inbox_activities(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_inbox_activity_uri ON inbox_activities(activity_uri);
	`

	// Fixed-window rate limit tokens
	sqlCreateRateLimitTable = `CREATE TABLE IF NOT EXISTS rate_limit_entries (
		id TEXT NOT NULL PRIMARY KEY,
		key TEXT NOT NULL,
		window_start INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRateLimitIndices = `
		CREATE INDEX IF NOT EXISTS idx_rate_limit_key_window ON rate_limit_entries(key, window_start);
	`

	// Append-only hash-chained audit log
	sqlCreateAuditLogTable = `CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT NOT NULL PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		actor_type TEXT NOT NULL,
		actor_id TEXT DEFAULT '',
		action TEXT NOT NULL,
		target TEXT DEFAULT '',
		details TEXT DEFAULT '',
		checksum TEXT NOT NULL,
		prev_checksum TEXT DEFAULT ''
	)`

	sqlCreateAuditLogIndices = `
		CREATE INDEX IF NOT EXISTS idx_audit_log_order ON audit_log(timestamp, id);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name string
			sql  string
		}{
			{"followers", sqlCreateFollowersTable},
			{"following", sqlCreateFollowingTable},
			{"outbox_activities", sqlCreateOutboxTable},
			{"delivery_queue", sqlCreateDeliveryQueueTable},
			{"inbox_activities", sqlCreateInboxTable},
			{"rate_limit_entries", sqlCreateRateLimitTable},
			{"audit_log", sqlCreateAuditLogTable},
		}
		for _, t := range tables {
			if err := db.createTableIfNotExists(tx, t.sql, t.name); err != nil {
				return err
			}
		}

		indices := []string{
			sqlCreateFollowIndices,
			sqlCreateOutboxIndices,
			sqlCreateDeliveryQueueIndices,
			sqlCreateInboxIndices,
			sqlCreateRateLimitIndices,
			sqlCreateAuditLogIndices,
		}
		for _, idx := range indices {
			if _, err := tx.Exec(idx); err != nil {
				log.Printf("Warning: Failed to create indices: %v", err)
			}
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	return nil
}
