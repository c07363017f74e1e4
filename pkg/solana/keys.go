package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"
)

var addressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// IsAddress reports whether s looks like a base58 account or mint address.
func IsAddress(s string) bool {
	return addressRe.MatchString(s)
}

// ErrBadSecret is returned when a supplied secret cannot be decoded into a
// 64-byte ed25519 keypair.
var ErrBadSecret = errors.New("solana: secret is not a valid keypair")

// Keypair wraps an ed25519 signing key. Solana secret keys are the raw
// 64-byte ed25519 private key (seed followed by public key), so the stdlib
// representation matches the wire format exactly.
type Keypair struct {
	priv ed25519.PrivateKey
}

// KeypairFromBase58 decodes a base58 secret key.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, ErrBadSecret
	}
	if len(raw) != ed25519.PrivateKeySize {
		zero(raw)
		return nil, ErrBadSecret
	}
	return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// PublicAddress returns the base58 public key.
func (k *Keypair) PublicAddress() string {
	return base58.Encode(k.priv[32:])
}

// SecretBase58 returns the base58 secret key. Callers must not retain or log
// the result.
func (k *Keypair) SecretBase58() string {
	return base58.Encode(k.priv)
}

// Sign signs a transaction message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// Zero wipes the key material. The keypair is unusable afterwards.
func (k *Keypair) Zero() {
	zero(k.priv)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
