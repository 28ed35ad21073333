package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Signer produces signatures on behalf of the local party.
type Signer interface {
	Party() Party
	Sign(message []byte) []byte
}

// KeyPair is an ed25519 signer bound to a party name.
type KeyPair struct {
	party   Party
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a random key pair for name.
func GenerateKeyPair(name string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", name, err)
	}
	return &KeyPair{party: Party{Name: name, PublicKey: pub}, private: priv}, nil
}

// DeriveKeyPair deterministically derives a key pair for name from a shared seed,
// so a restarted node keeps the identities it registered.
func DeriveKeyPair(name, seed string) *KeyPair {
	material := blake2b.Sum256([]byte(seed + "/" + name))
	priv := ed25519.NewKeyFromSeed(material[:])
	return &KeyPair{
		party:   Party{Name: name, PublicKey: priv.Public().(ed25519.PublicKey)},
		private: priv,
	}
}

func (k *KeyPair) Party() Party {
	return k.party
}

func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// Verify checks sig against the party's public key.
func Verify(p Party, message, sig []byte) bool {
	if len(p.PublicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(p.PublicKey, message, sig)
}
