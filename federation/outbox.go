package federation

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// Publisher records canonical copies of locally originated activities
// and expands them into delivery queue work. All of its operations are
// idempotent upserts, so a retried request can publish the same
// activity twice without duplicating anything.
type Publisher struct {
	database *db.DB
	identity *Identity
}

// NewPublisher returns a publisher writing through the given store.
func NewPublisher(database *db.DB, identity *Identity) *Publisher {
	return &Publisher{database: database, identity: identity}
}

// Publish upserts the canonical outbox copy keyed by activity URI.
// Re-publishing an existing URI updates type/payload/object in place,
// which gives Update activities reusing the id pattern edit-in-place
// semantics.
func (p *Publisher) Publish(activity *domain.OutboxActivity) error {
	if activity.ActivityURI == "" {
		return fmt.Errorf("activity has no URI")
	}
	if activity.Id == uuid.Nil {
		activity.Id = uuid.New()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}
	return p.database.UpsertOutboxActivity(activity)
}

// FanOutToFollowers queues one delivery per distinct accepted-follower
// inbox. Re-triggering fan-out for the same activity is a no-op for
// pairs already queued. Returns the number of distinct target inboxes.
func (p *Publisher) FanOutToFollowers(localActorId, activityURI string) (int, error) {
	err, inboxes := p.database.ReadAcceptedFollowerInboxes(localActorId)
	if err != nil {
		return 0, fmt.Errorf("failed to load follower inboxes: %w", err)
	}
	if len(inboxes) == 0 {
		log.Printf("Outbox: No followers to deliver %s to", activityURI)
		return 0, nil
	}

	now := time.Now()
	for _, inbox := range inboxes {
		if err := p.database.UpsertDeliveryItem(activityURI, inbox, now); err != nil {
			return 0, fmt.Errorf("failed to queue delivery to %s: %w", inbox, err)
		}
	}
	log.Printf("Outbox: Queued %s for delivery to %d inboxes", activityURI, len(inboxes))
	return len(inboxes), nil
}

// EnqueueImmediate queues a single addressed delivery, the non-fan-out
// path used for directed activities such as an Accept back to the
// follower that triggered it. Same upsert, same uniqueness guarantee.
func (p *Publisher) EnqueueImmediate(activityURI, inboxURI string) error {
	return p.database.UpsertDeliveryItem(activityURI, inboxURI, time.Now())
}

// PublishAndFanOut is the entry point the business layer calls when a
// local action needs broadcasting.
func (p *Publisher) PublishAndFanOut(activity *domain.OutboxActivity) error {
	if err := p.Publish(activity); err != nil {
		return err
	}
	_, err := p.FanOutToFollowers(activity.LocalActorId, activity.ActivityURI)
	return err
}

// NewActivityURI mints a globally unique activity URI under the node's
// domain.
func (p *Publisher) NewActivityURI() string {
	return fmt.Sprintf("https://%s/activities/%s", p.identity.Domain, uuid.New().String())
}

// BuildAccept constructs the Accept activity answering a Follow, with
// the original Follow embedded as the object.
func (p *Publisher) BuildAccept(followURI, followerActorURI string) (*domain.OutboxActivity, error) {
	actorURI := p.identity.ActorURI()
	acceptURI := p.NewActivityURI()

	accept := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       acceptURI,
		"type":     "Accept",
		"actor":    actorURI,
		"object": map[string]any{
			"id":     followURI,
			"type":   "Follow",
			"actor":  followerActorURI,
			"object": actorURI,
		},
	}
	raw, err := json.Marshal(accept)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Accept: %w", err)
	}

	return &domain.OutboxActivity{
		Id:           uuid.New(),
		LocalActorId: p.identity.ActorName,
		ActivityURI:  acceptURI,
		ActivityType: domain.ActivityAccept,
		ActivityJSON: string(raw),
		ObjectURI:    followURI,
		ObjectType:   "Follow",
		CreatedAt:    time.Now(),
	}, nil
}

// BuildFollow constructs an outbound Follow targeting a remote actor.
func (p *Publisher) BuildFollow(remoteActorURI string) (*domain.OutboxActivity, error) {
	followURI := p.NewActivityURI()

	follow := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       followURI,
		"type":     "Follow",
		"actor":    p.identity.ActorURI(),
		"object":   remoteActorURI,
	}
	raw, err := json.Marshal(follow)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Follow: %w", err)
	}

	return &domain.OutboxActivity{
		Id:           uuid.New(),
		LocalActorId: p.identity.ActorName,
		ActivityURI:  followURI,
		ActivityType: domain.ActivityFollow,
		ActivityJSON: string(raw),
		ObjectURI:    remoteActorURI,
		ObjectType:   "Actor",
		CreatedAt:    time.Now(),
	}, nil
}

// SendFollow stores a pending following edge and queues the Follow for
// delivery to the remote actor's inbox.
func (p *Publisher) SendFollow(remoteActorURI, remoteInboxURI string) error {
	follow, err := p.BuildFollow(remoteActorURI)
	if err != nil {
		return err
	}
	if err := p.Publish(follow); err != nil {
		return fmt.Errorf("failed to store Follow: %w", err)
	}

	edge := &domain.FollowEdge{
		Id:            uuid.New(),
		LocalActorId:  p.identity.ActorName,
		RemoteActorId: remoteActorURI,
		InboxURI:      remoteInboxURI,
		ActivityURI:   follow.ActivityURI,
		Status:        domain.FollowPending, // pending until Accept received
		CreatedAt:     time.Now(),
	}
	if err := p.database.UpsertFollowEdge(db.Following, edge); err != nil {
		return fmt.Errorf("failed to store follow edge: %w", err)
	}

	return p.EnqueueImmediate(follow.ActivityURI, remoteInboxURI)
}
