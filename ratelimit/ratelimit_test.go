package ratelimit

import (
	"testing"

	"github.com/deemkeen/anancus/db"
)

func setupTestLimiter(t *testing.T) (*Limiter, *db.DB) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	return NewLimiter(database), database
}

func TestCheckAllowsUpToLimit(t *testing.T) {
	limiter, database := setupTestLimiter(t)
	defer database.Close()

	// A one-hour window keeps the test inside a single window
	for i := 0; i < 5; i++ {
		allowed, err := limiter.Check("inbound:alice", 3600, 5)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Check("inbound:alice", 3600, 5)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if allowed {
		t.Error("Sixth request must be denied")
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	limiter, database := setupTestLimiter(t)
	defer database.Close()

	allowed, err := limiter.Check("inbound:alice", 3600, 1)
	if err != nil || !allowed {
		t.Fatalf("First request should pass: %v", err)
	}
	allowed, err = limiter.Check("inbound:alice", 3600, 1)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if allowed {
		t.Error("Second request on the same key must be denied")
	}

	allowed, err = limiter.Check("outbound:one.example", 3600, 1)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !allowed {
		t.Error("A different key must have its own budget")
	}
}

func TestPurgeKeepsCurrentWindow(t *testing.T) {
	limiter, database := setupTestLimiter(t)
	defer database.Close()

	if _, err := limiter.Check("inbound:alice", 3600, 5); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	purged, err := limiter.Purge(3600, 2)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("Current window must survive the purge, got %d purged", purged)
	}

	// The entry still counts after the purge
	for i := 0; i < 4; i++ {
		allowed, err := limiter.Check("inbound:alice", 3600, 5)
		if err != nil || !allowed {
			t.Fatalf("Check failed: %v", err)
		}
	}
	allowed, err := limiter.Check("inbound:alice", 3600, 5)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if allowed {
		t.Error("Budget must be exhausted after five requests")
	}
}
