package ratelimit

import (
	"time"

	"github.com/deemkeen/anancus/db"
)

// Limiter is a fixed-window per-key counter backed by the relational
// store, so that every node process charges against the same budget.
// Bursts straddling a window boundary can briefly reach 2x the
// configured rate; that approximation is accepted.
type Limiter struct {
	database *db.DB
}

// NewLimiter returns a limiter backed by the given store.
func NewLimiter(database *db.DB) *Limiter {
	return &Limiter{database: database}
}

// Check reports whether one more event is allowed for the key in the
// current window, recording it when allowed. Rejections are synchronous
// and surfaced to the caller as a throttling signal, never queued.
func (l *Limiter) Check(key string, windowSeconds int, maxCount int) (bool, error) {
	now := time.Now()
	windowStart := now.Unix() / int64(windowSeconds)
	err, allowed := l.database.CheckAndCountRateLimit(key, windowStart, maxCount, now)
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// Purge drops entries older than retainWindows windows, bounding
// storage growth. Called from the periodic cleanup sweep.
func (l *Limiter) Purge(windowSeconds int, retainWindows int) (int64, error) {
	currentWindow := time.Now().Unix() / int64(windowSeconds)
	err, purged := l.database.PurgeRateLimitEntriesBefore(currentWindow - int64(retainWindows))
	return purged, err
}
