package domain

import (
	"time"

	"github.com/google/uuid"
)

// FollowStatus is the approval state of a follow edge.
type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
	FollowRejected FollowStatus = "rejected"
)

// DeliveryStatus is the lifecycle state of a queued outbound delivery.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
)

// InboxStatus is the lifecycle state of a queued inbound activity.
type InboxStatus string

const (
	InboxPending InboxStatus = "pending"
	// InboxProcessing is the transient claim marker; items stuck here
	// are reverted by the stale sweep.
	InboxProcessing InboxStatus = "processing"
	InboxProcessed  InboxStatus = "processed"
	InboxFailed     InboxStatus = "failed"
)

// ActivityType is the federation activity vocabulary we dispatch on.
// Unknown is the forward-compatibility fallback for types we don't
// support yet; it must never wedge the inbox queue.
type ActivityType string

const (
	ActivityFollow   ActivityType = "Follow"
	ActivityAccept   ActivityType = "Accept"
	ActivityReject   ActivityType = "Reject"
	ActivityCreate   ActivityType = "Create"
	ActivityUpdate   ActivityType = "Update"
	ActivityDelete   ActivityType = "Delete"
	ActivityLike     ActivityType = "Like"
	ActivityAnnounce ActivityType = "Announce"
	ActivityUndo     ActivityType = "Undo"
	ActivityUnknown  ActivityType = "Unknown"
)

// ParseActivityType maps a wire type string onto the closed enum.
func ParseActivityType(s string) ActivityType {
	switch ActivityType(s) {
	case ActivityFollow, ActivityAccept, ActivityReject, ActivityCreate,
		ActivityUpdate, ActivityDelete, ActivityLike, ActivityAnnounce, ActivityUndo:
		return ActivityType(s)
	default:
		return ActivityUnknown
	}
}

// FollowEdge is one directional follow relationship. The same shape is
// stored twice: followers (remote actor follows a local actor) and
// following (local actor follows a remote actor). At most one row exists
// per (local, remote) pair per direction.
type FollowEdge struct {
	Id            uuid.UUID
	LocalActorId  string
	RemoteActorId string // remote actor URI
	InboxURI      string // remote actor's inbox, resolved at follow time
	ActivityURI   string // the Follow activity that created/last touched the edge
	Status        FollowStatus
	CreatedAt     time.Time
	AcceptedAt    *time.Time
}

// OutboxActivity is the canonical copy of a locally originated activity,
// unique per ActivityURI. Re-publishing the same URI updates the payload
// in place (Update activities reuse the id pattern).
type OutboxActivity struct {
	Id           uuid.UUID
	LocalActorId string
	ActivityURI  string
	ActivityType ActivityType
	ActivityJSON string
	ObjectURI    string
	ObjectType   string
	CreatedAt    time.Time
}

// DeliveryQueueItem is one pending outbound delivery, unique per
// (ActivityURI, InboxURI) pair. Terminal states are delivered and
// failed; rows are kept for debugging, never deleted.
type DeliveryQueueItem struct {
	Id            uuid.UUID
	ActivityURI   string
	InboxURI      string
	Status        DeliveryStatus
	RetryCount    int
	LastError     string
	NextRetryAt   time.Time
	LastAttemptAt *time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
}

// InboxActivity is one ingested remote push awaiting processing.
// Inbound failures are terminal; remote senders own their retries.
type InboxActivity struct {
	Id            uuid.UUID
	LocalActorId  string
	RemoteActorId string
	ActivityURI   string
	ActivityType  ActivityType
	ActivityJSON  string
	Status        InboxStatus
	ErrorMessage  string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// RateLimitEntry is one token in a fixed-window counter bucket.
type RateLimitEntry struct {
	Id          uuid.UUID
	Key         string
	WindowStart int64
	CreatedAt   time.Time
}

// AuditLogEntry is one link in the tamper-evident hash chain.
// Checksum covers the canonicalized fields plus PrevChecksum, so
// mutating any stored entry invalidates everything after it.
type AuditLogEntry struct {
	Id           uuid.UUID
	Timestamp    time.Time
	ActorType    string
	ActorId      string
	Action       string
	Target       string
	Details      string // JSON, opaque to the chain
	Checksum     string
	PrevChecksum string // empty only for the genesis entry
}
