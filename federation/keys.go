package federation

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
)

// KeyResolver resolves the public key a remote actor publishes for
// verifying its HTTP signatures.
type KeyResolver interface {
	ResolveKey(actorURI string) (string, error)
}

type cachedKey struct {
	pem       string
	fetchedAt time.Time
}

// HTTPKeyResolver fetches the actor document and extracts
// publicKey.publicKeyPem. Keys are cached in memory; key rotation is
// rare enough that a stale entry just means one failed verification
// per TTL.
type HTTPKeyResolver struct {
	client *http.Client
	mu     sync.RWMutex
	cache  map[string]cachedKey
	ttl    time.Duration
}

// NewHTTPKeyResolver returns a resolver with a 24h key cache.
func NewHTTPKeyResolver() *HTTPKeyResolver {
	return &HTTPKeyResolver{
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cachedKey),
		ttl:    24 * time.Hour,
	}
}

func (r *HTTPKeyResolver) ResolveKey(actorURI string) (string, error) {
	r.mu.RLock()
	cached, ok := r.cache[actorURI]
	r.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < r.ttl {
		return cached.pem, nil
	}

	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("actor fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read actor document: %w", err)
	}

	var doc struct {
		ID        string `json:"id"`
		PublicKey struct {
			ID           string `json:"id"`
			Owner        string `json:"owner"`
			PublicKeyPem string `json:"publicKeyPem"`
		} `json:"publicKey"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to parse actor document: %w", err)
	}
	if doc.PublicKey.PublicKeyPem == "" {
		return "", fmt.Errorf("actor %s publishes no public key", actorURI)
	}

	r.mu.Lock()
	r.cache[actorURI] = cachedKey{pem: doc.PublicKey.PublicKeyPem, fetchedAt: time.Now()}
	r.mu.Unlock()

	return doc.PublicKey.PublicKeyPem, nil
}

// VerifyInbound authenticates one inbound push: the request must carry
// a signature made with the key the claimed actor publishes. A valid
// signature under some other actor's key is rejected, so a peer cannot
// smuggle activities attributed to a third party.
func VerifyInbound(req *http.Request, env *domain.Envelope, resolver KeyResolver) error {
	if req.Header.Get("Signature") == "" {
		return fmt.Errorf("missing HTTP signature")
	}

	publicKeyPem, err := resolver.ResolveKey(env.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve key for %s: %w", env.Actor, err)
	}

	signer, err := VerifyRequest(req, publicKeyPem)
	if err != nil {
		return err
	}
	if signer != env.Actor {
		return fmt.Errorf("signature key belongs to %s, not the claimed actor %s", signer, env.Actor)
	}
	return nil
}
