package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Rate limit queries
const (
	sqlCountRateLimitEntries = `SELECT COUNT(*) FROM rate_limit_entries WHERE key = ? AND window_start = ?`

	sqlInsertRateLimitEntry = `INSERT INTO rate_limit_entries(id, key, window_start, created_at) VALUES (?, ?, ?, ?)`

	sqlPurgeRateLimitEntries = `DELETE FROM rate_limit_entries WHERE window_start < ?`
)

// CheckAndCountRateLimit counts the tokens for (key, window) and, if
// under the limit, records a new one. Both steps run inside one
// transaction so the count the caller is charged against is the one
// it saw.
func (db *DB) CheckAndCountRateLimit(key string, windowStart int64, maxCount int, now time.Time) (error, bool) {
	allowed := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(sqlCountRateLimitEntries, key, windowStart).Scan(&count); err != nil {
			return err
		}
		if count >= maxCount {
			allowed = false
			return nil
		}
		if _, err := tx.Exec(sqlInsertRateLimitEntry, uuid.New().String(), key, windowStart, now); err != nil {
			return err
		}
		allowed = true
		return nil
	})
	return err, allowed
}

// PurgeRateLimitEntriesBefore drops tokens from windows older than the
// retention horizon, bounding table growth.
func (db *DB) PurgeRateLimitEntriesBefore(minWindowStart int64) (error, int64) {
	var purged int64
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlPurgeRateLimitEntries, minWindowStart)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	return err, purged
}
