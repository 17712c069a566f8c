package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// Actor types recorded in the audit log.
const (
	ActorSystem = "system"
	ActorRemote = "remote"
	ActorLocal  = "local"
)

// Chain is the append-only, hash-linked audit log. Every entry's
// checksum covers its own canonicalized fields plus the previous
// entry's checksum, so any silent mutation of stored history breaks
// verification from that point on.
type Chain struct {
	database *db.DB
}

// NewChain returns a chain backed by the given store.
func NewChain(database *db.DB) *Chain {
	return &Chain{database: database}
}

// Append records one security-relevant event, linking it to the current
// chain head. On any failure nothing is written; callers auditing a
// security-critical action should treat the error as a reason to abort
// that action rather than proceed with a chain gap.
func (c *Chain) Append(actorType, actorId, action, target string, details map[string]any) (*domain.AuditLogEntry, error) {
	detailsJSON := ""
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit details: %w", err)
		}
		detailsJSON = string(b)
	}

	err, prev := c.database.ReadLatestAuditEntry()
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", err)
	}
	prevChecksum := ""
	if prev != nil {
		prevChecksum = prev.Checksum
	}

	entry := &domain.AuditLogEntry{
		Id:           uuid.New(),
		Timestamp:    time.Now().UTC(),
		ActorType:    actorType,
		ActorId:      actorId,
		Action:       action,
		Target:       target,
		Details:      detailsJSON,
		PrevChecksum: prevChecksum,
	}
	entry.Checksum = Checksum(entry)

	if err := c.database.InsertAuditEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}
	return entry, nil
}

// Checksum computes the chain hash for an entry from its canonical
// encoding and its predecessor's checksum.
//
// Canonical form (byte-identical across implementations): the fields
// timestamp (UTC, RFC 3339 with nanoseconds), actor_type, actor_id,
// action, target, details and prev_checksum, in that order, joined by
// a single newline, hashed with SHA-256 and hex encoded.
func Checksum(entry *domain.AuditLogEntry) string {
	canonical := strings.Join([]string{
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.ActorType,
		entry.ActorId,
		entry.Action,
		entry.Target,
		entry.Details,
		entry.PrevChecksum,
	}, "\n")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Verify replays the whole log in chain order, recomputing every
// checksum from genesis. It returns the number of verified entries; a
// mismatch means the stored history was tampered with or corrupted.
func (c *Chain) Verify() (int, error) {
	err, entries := c.database.ReadAuditEntriesOrdered()
	if err != nil {
		return 0, fmt.Errorf("failed to read audit log: %w", err)
	}
	prevChecksum := ""
	for i, entry := range *entries {
		if entry.PrevChecksum != prevChecksum {
			return i, fmt.Errorf("audit chain broken at entry %s: prev_checksum mismatch", entry.Id)
		}
		if Checksum(&entry) != entry.Checksum {
			return i, fmt.Errorf("audit chain broken at entry %s: checksum mismatch", entry.Id)
		}
		prevChecksum = entry.Checksum
	}
	return len(*entries), nil
}
