package federation

import (
	"crypto/rsa"
	"fmt"
	"log"
	"os"

	"github.com/deemkeen/anancus/util"
)

const (
	privateKeyFile = "actor.pem"
	publicKeyFile  = "actor.pub.pem"
)

// Identity is the node actor: the single signing identity outbound
// deliveries are attributed to.
type Identity struct {
	ActorName string
	Domain    string
	keyPair   *util.RsaKeyPair
}

// LoadOrCreateIdentity loads the node actor keypair from the config
// dir, generating and persisting a fresh one on first start.
func LoadOrCreateIdentity(conf *util.AppConfig) (*Identity, error) {
	privPath := util.ResolveFilePathWithSubdir(".keys", privateKeyFile)
	pubPath := util.ResolveFilePathWithSubdir(".keys", publicKeyFile)

	priv, errPriv := os.ReadFile(privPath)
	pub, errPub := os.ReadFile(pubPath)

	keyPair := &util.RsaKeyPair{Private: string(priv), Public: string(pub)}
	if errPriv != nil || errPub != nil {
		log.Println("Generating node actor keypair...")
		keyPair = util.GeneratePemKeypair()
		if err := os.WriteFile(privPath, []byte(keyPair.Private), 0600); err != nil {
			return nil, fmt.Errorf("failed to persist private key: %w", err)
		}
		if err := os.WriteFile(pubPath, []byte(keyPair.Public), 0644); err != nil {
			return nil, fmt.Errorf("failed to persist public key: %w", err)
		}
	}

	return &Identity{
		ActorName: conf.Conf.ActorName,
		Domain:    conf.Conf.SslDomain,
		keyPair:   keyPair,
	}, nil
}

// NewIdentity builds an identity from an existing keypair (tests).
func NewIdentity(actorName, domain string, keyPair *util.RsaKeyPair) *Identity {
	return &Identity{ActorName: actorName, Domain: domain, keyPair: keyPair}
}

// ActorURI is the stable URI the node actor is addressable by.
func (id *Identity) ActorURI() string {
	return fmt.Sprintf("https://%s/actors/%s", id.Domain, id.ActorName)
}

// KeyId identifies the signing key in outbound signatures.
func (id *Identity) KeyId() string {
	return fmt.Sprintf("%s#main-key", id.ActorURI())
}

// PublicKeyPem returns the public half for serving to peers.
func (id *Identity) PublicKeyPem() string {
	return id.keyPair.Public
}

// PrivateKey parses the private half for signing.
func (id *Identity) PrivateKey() (*rsa.PrivateKey, error) {
	return ParsePrivateKey(id.keyPair.Private)
}
