package federation

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/deemkeen/anancus/audit"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/ratelimit"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
)

// setupTestDB opens an isolated in-memory store.
func setupTestDB(t *testing.T) *db.DB {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	return database
}

// testIdentity builds a node identity with a small throwaway key so
// tests stay fast.
func testIdentity(t *testing.T) *Identity {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})
	return NewIdentity("node", "node.example", &util.RsaKeyPair{
		Private: string(privPEM),
		Public:  string(pubPEM),
	})
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Host = "localhost"
	conf.Conf.SslDomain = "node.example"
	conf.Conf.ActorName = "node"
	conf.Conf.BatchSize = 50
	conf.Conf.MaxRetries = 3
	conf.Conf.WorkerIntervalSec = 10
	conf.Conf.StaleMinutes = 15
	conf.Conf.RateWindowSec = 60
	conf.Conf.RateMaxCount = 1000
	return conf
}

func acceptedFollower(remoteActorURI, inboxURI string) *domain.FollowEdge {
	now := time.Now()
	return &domain.FollowEdge{
		Id:            uuid.New(),
		LocalActorId:  "node",
		RemoteActorId: remoteActorURI,
		InboxURI:      inboxURI,
		ActivityURI:   "https://remote.example/activities/" + uuid.New().String(),
		Status:        domain.FollowAccepted,
		CreatedAt:     now,
		AcceptedAt:    &now,
	}
}

func newTestChain(database *db.DB) *audit.Chain {
	return audit.NewChain(database)
}

func newTestLimiter(database *db.DB) *ratelimit.Limiter {
	return ratelimit.NewLimiter(database)
}
