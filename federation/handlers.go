package federation

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/google/uuid"
)

// RegisterDefaultHandlers wires the follow state machine into the inbox
// worker. The remaining vocabulary (Create/Update/Delete/Like/Announce)
// carries business-layer side effects and stays with whoever registers
// handlers for it; unregistered types are accepted as no-ops.
func RegisterDefaultHandlers(w *InboxWorker, database *db.DB, publisher *Publisher, chain *audit.Chain) {
	w.Register(domain.ActivityFollow, handleFollow(database, publisher, chain))
	w.Register(domain.ActivityAccept, handleAccept(database))
	w.Register(domain.ActivityReject, handleReject(database, chain))
	w.Register(domain.ActivityUndo, handleUndo(database, chain))
}

// handleFollow records the follower edge and answers with an Accept.
// A re-sent Follow from the same actor updates the existing edge.
func handleFollow(database *db.DB, publisher *Publisher, chain *audit.Chain) Handler {
	return func(item *domain.InboxActivity, env *domain.Envelope) error {
		log.Printf("Inbox: Processing Follow %s from %s", env.ID, env.Actor)

		now := time.Now()
		edge := &domain.FollowEdge{
			Id:            uuid.New(),
			LocalActorId:  item.LocalActorId,
			RemoteActorId: env.Actor,
			InboxURI:      actorInboxURI(env.Actor),
			ActivityURI:   env.ID,
			Status:        domain.FollowAccepted, // auto-accept
			CreatedAt:     now,
			AcceptedAt:    &now,
		}
		if err := database.UpsertFollowEdge(db.Followers, edge); err != nil {
			return fmt.Errorf("failed to store follower: %w", err)
		}

		accept, err := publisher.BuildAccept(env.ID, env.Actor)
		if err != nil {
			return err
		}
		if err := publisher.Publish(accept); err != nil {
			return fmt.Errorf("failed to store Accept: %w", err)
		}
		if err := publisher.EnqueueImmediate(accept.ActivityURI, edge.InboxURI); err != nil {
			return fmt.Errorf("failed to queue Accept: %w", err)
		}

		if _, auditErr := chain.Append(audit.ActorRemote, env.Actor, "follower_accepted", item.LocalActorId, map[string]any{
			"follow_uri": env.ID,
		}); auditErr != nil {
			log.Printf("AuditChain: append failed, chain gap for follower_accepted: %v", auditErr)
		}

		log.Printf("Inbox: Accepted follow from %s", env.Actor)
		return nil
	}
}

// handleAccept confirms one of our pending outbound follows. The
// embedded object references the Follow activity we sent.
func handleAccept(database *db.DB) Handler {
	return func(item *domain.InboxActivity, env *domain.Envelope) error {
		ref, err := env.ObjectAsRef()
		if err != nil {
			// Some servers send the Follow URI as a bare string
			if uri := env.ObjectURI(); uri != "" {
				ref = &domain.ObjectRef{ID: uri, Type: "Follow"}
			} else {
				return fmt.Errorf("Accept without resolvable object: %w", err)
			}
		}

		err, edge := database.ReadFollowEdgeByActivityURI(db.Following, ref.ID)
		if err != nil || edge == nil {
			return fmt.Errorf("Accept references unknown follow %s", ref.ID)
		}
		if edge.RemoteActorId != env.Actor {
			return fmt.Errorf("Accept for %s came from %s, not the followed actor", ref.ID, env.Actor)
		}

		if err := database.UpdateFollowEdgeStatus(db.Following, edge.LocalActorId, edge.RemoteActorId, domain.FollowAccepted, time.Now()); err != nil {
			return fmt.Errorf("failed to accept follow: %w", err)
		}

		log.Printf("Inbox: Follow %s was accepted by %s", ref.ID, env.Actor)
		return nil
	}
}

// handleReject is the negative mirror of handleAccept. The edge keeps
// its accepted_at trace if it was ever accepted before.
func handleReject(database *db.DB, chain *audit.Chain) Handler {
	return func(item *domain.InboxActivity, env *domain.Envelope) error {
		uri := env.ObjectURI()
		if uri == "" {
			return fmt.Errorf("Reject without resolvable object")
		}

		err, edge := database.ReadFollowEdgeByActivityURI(db.Following, uri)
		if err != nil || edge == nil {
			return fmt.Errorf("Reject references unknown follow %s", uri)
		}
		if edge.RemoteActorId != env.Actor {
			return fmt.Errorf("Reject for %s came from %s, not the followed actor", uri, env.Actor)
		}

		if err := database.UpdateFollowEdgeStatus(db.Following, edge.LocalActorId, edge.RemoteActorId, domain.FollowRejected, time.Time{}); err != nil {
			return fmt.Errorf("failed to reject follow: %w", err)
		}

		if _, auditErr := chain.Append(audit.ActorRemote, env.Actor, "follow_rejected", uri, nil); auditErr != nil {
			log.Printf("AuditChain: append failed, chain gap for follow_rejected: %v", auditErr)
		}

		log.Printf("Inbox: Follow %s was rejected by %s", uri, env.Actor)
		return nil
	}
}

// handleUndo removes a follower edge when the remote undoes its Follow.
func handleUndo(database *db.DB, chain *audit.Chain) Handler {
	return func(item *domain.InboxActivity, env *domain.Envelope) error {
		ref, err := env.ObjectAsRef()
		if err != nil {
			return fmt.Errorf("failed to parse Undo object: %w", err)
		}

		if domain.ParseActivityType(ref.Type) != domain.ActivityFollow {
			log.Printf("Inbox: Ignoring Undo of %s (%s)", ref.Type, ref.ID)
			return nil
		}

		err, edge := database.ReadFollowEdgeByActivityURI(db.Followers, ref.ID)
		if err != nil || edge == nil {
			log.Printf("Inbox: Undo references unknown follow %s, ignoring", ref.ID)
			return nil
		}
		if edge.RemoteActorId != env.Actor {
			return fmt.Errorf("Undo of %s came from %s, not the follower", ref.ID, env.Actor)
		}

		if err := database.DeleteFollowEdge(db.Followers, edge.LocalActorId, edge.RemoteActorId); err != nil {
			return fmt.Errorf("failed to delete follower: %w", err)
		}

		if _, auditErr := chain.Append(audit.ActorRemote, env.Actor, "follower_removed", edge.LocalActorId, map[string]any{
			"follow_uri": ref.ID,
		}); auditErr != nil {
			log.Printf("AuditChain: append failed, chain gap for follower_removed: %v", auditErr)
		}

		log.Printf("Inbox: Removed follower %s", env.Actor)
		return nil
	}
}

// actorInboxURI derives an actor's inbox from its URI. Proper actor
// document fetching is a collaborator concern; the /inbox suffix is the
// convention every implementation this node talks to follows.
func actorInboxURI(actorURI string) string {
	return strings.TrimRight(actorURI, "/") + "/inbox"
}
