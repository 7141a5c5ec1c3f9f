// Package identity wraps ed25519 keypairs as replica actor identities.
//
// Key generation and the signature primitive itself are treated as an
// external, abstract signer/verifier per SPEC_FULL.md: this package does no
// cryptographic design of its own, it only adapts crypto/ed25519 to the
// ActorID/Signature wire types in internal/ids.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/ids"
)

// ErrInvalidSignature is returned by Verify when a signature does not match
// the given message under the given actor id.
var ErrInvalidSignature = errors.New("identity: invalid signature")

// Identity holds one replica's ed25519 signing key.
type Identity struct {
	signingKey ed25519.PrivateKey
}

// Generate creates a fresh random identity.
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Identity{signingKey: priv}, nil
}

// FromSecretBytes reconstructs an identity from a 32-byte ed25519 seed.
func FromSecretBytes(seed [32]byte) *Identity {
	return &Identity{signingKey: ed25519.NewKeyFromSeed(seed[:])}
}

// SecretBytes returns the 32-byte seed this identity was derived from.
func (id *Identity) SecretBytes() [32]byte {
	var out [32]byte
	copy(out[:], id.signingKey.Seed())
	return out
}

// ActorID returns the public actor id (the ed25519 public key).
func (id *Identity) ActorID() ids.ActorID {
	pub := id.signingKey.Public().(ed25519.PublicKey)
	var out ids.ActorID
	copy(out[:], pub)
	return out
}

// Sign signs message with this identity's private key.
func (id *Identity) Sign(message []byte) ids.Signature {
	sig := ed25519.Sign(id.signingKey, message)
	var out ids.Signature
	copy(out[:], sig)
	return out
}

// Verify checks that signature is a valid ed25519 signature over message
// under actorID's public key.
func Verify(actorID ids.ActorID, message []byte, signature ids.Signature) error {
	pub := ed25519.PublicKey(actorID[:])
	if !ed25519.Verify(pub, message, signature[:]) {
		return ErrInvalidSignature
	}
	return nil
}
