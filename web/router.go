package web

import (
	"fmt"
	"log"
	"net/http"

	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/ratelimit"
	"github.com/deemkeen/anancus/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Deps carries the collaborators the HTTP surface writes through.
type Deps struct {
	Conf     *util.AppConfig
	DB       *db.DB
	Identity *federation.Identity
	Limiter  *ratelimit.Limiter
	Chain    *audit.Chain
	Keys     federation.KeyResolver
}

// Router serves the federation HTTP surface: inbox ingestion, the node
// actor document, follower collections, queue health and the outbox
// feed. Ingestion only enqueues; all side effects happen in the inbox
// worker.
func Router(deps Deps) error {
	conf := deps.Conf
	log.Printf("Starting federation HTTP server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    util.GetNameAndVersion(),
			"actor":   deps.Identity.ActorURI(),
			"version": util.GetVersion(),
		})
	})

	g.GET("/actors/:actor", func(c *gin.Context) {
		HandleActor(c, deps)
	})

	g.GET("/actors/:actor/followers", func(c *gin.Context) {
		HandleCollection(c, deps, db.Followers)
	})

	g.GET("/actors/:actor/following", func(c *gin.Context) {
		HandleCollection(c, deps, db.Following)
	})

	g.GET("/health/queues", func(c *gin.Context) {
		HandleQueueHealth(c, deps)
	})

	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := GetFeed(deps)
		if err != nil {
			c.String(http.StatusNotFound, "")
		} else {
			c.String(http.StatusOK, rss)
		}
	})

	// Stricter rate limit for inbox endpoints: 5 req/sec per IP
	inboxLimiter := NewRateLimiter(rate.Limit(5), 10)
	// Max 1MB request body size for activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	g.POST("/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, func(c *gin.Context) {
		HandleInboxPost(c, deps, deps.Identity.ActorName)
	})

	g.POST("/actors/:actor/inbox", RateLimitMiddleware(inboxLimiter), maxBodySize, func(c *gin.Context) {
		HandleInboxPost(c, deps, c.Param("actor"))
	})

	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

// HandleActor serves the node actor document with its public key, which
// peers need to verify our outbound signatures.
func HandleActor(c *gin.Context, deps Deps) {
	name := c.Param("actor")
	if name != deps.Identity.ActorName {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown actor"})
		return
	}

	actorURI := deps.Identity.ActorURI()
	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, gin.H{
		"@context":          "https://www.w3.org/ns/activitystreams",
		"id":                actorURI,
		"type":              "Application",
		"preferredUsername": deps.Identity.ActorName,
		"inbox":             actorURI + "/inbox",
		"followers":         actorURI + "/followers",
		"following":         actorURI + "/following",
		"publicKey": gin.H{
			"id":           deps.Identity.KeyId(),
			"owner":        actorURI,
			"publicKeyPem": deps.Identity.PublicKeyPem(),
		},
	})
}

// HandleCollection serves an OrderedCollection stub with the accepted
// edge count for one direction.
func HandleCollection(c *gin.Context, deps Deps, dir db.FollowDirection) {
	name := c.Param("actor")
	err, count := deps.DB.CountFollowEdges(dir, name, domain.FollowAccepted)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count"})
		return
	}

	c.Header("Content-Type", "application/activity+json; charset=utf-8")
	c.JSON(http.StatusOK, gin.H{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         fmt.Sprintf("https://%s/actors/%s/%s", deps.Conf.Conf.SslDomain, name, dir),
		"type":       "OrderedCollection",
		"totalItems": count,
	})
}

// HandleQueueHealth reports per-status queue counts. Delivery and inbox
// failures are asynchronous by design; this is how they get observed.
func HandleQueueHealth(c *gin.Context, deps Deps) {
	err, deliveries := deps.DB.CountDeliveriesByStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count deliveries"})
		return
	}
	err, inbox := deps.DB.CountInboxByStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count inbox"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"delivery_queue": deliveries,
		"inbox_queue":    inbox,
	})
}

// HandleInboxPost ingests one remote push: parse, verify the signature
// against the claimed actor's published key, rate limit by sending
// actor, enqueue pending work, answer 202. Processing happens later in
// the inbox worker; everything after the rate check is asynchronous.
func HandleInboxPost(c *gin.Context, deps Deps, localActorId string) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	env, err := domain.ParseEnvelope(body)
	if err != nil {
		log.Printf("Inbox: Rejected malformed activity: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity"})
		return
	}

	if err := federation.VerifyInbound(c.Request, env, deps.Keys); err != nil {
		log.Printf("Inbox: Signature verification failed for %s: %v", env.Actor, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	allowed, err := deps.Limiter.Check("inbound:"+env.Actor, deps.Conf.Conf.RateWindowSec, deps.Conf.Conf.RateMaxCount)
	if err != nil {
		log.Printf("Inbox: Rate limit check failed for %s: %v", env.Actor, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !allowed {
		log.Printf("Inbox: Rate limited %s", env.Actor)
		if _, auditErr := deps.Chain.Append(audit.ActorRemote, env.Actor, "inbound_rate_limited", localActorId, nil); auditErr != nil {
			log.Printf("AuditChain: append failed, chain gap for inbound_rate_limited: %v", auditErr)
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	if _, err := federation.Enqueue(deps.DB, localActorId, env.Actor, env, body); err != nil {
		log.Printf("Inbox: Failed to enqueue %s: %v", env.ID, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	log.Printf("Inbox: Queued %s (%s) from %s", env.ID, env.Type, env.Actor)
	c.Status(http.StatusAccepted)
}
