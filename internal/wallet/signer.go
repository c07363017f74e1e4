// Package wallet turns a user-supplied signing secret into a one-operation
// signer. The secret lives only on the call stack of the operation that uses
// it: it is never logged, never persisted, and zeroized on Close.
package wallet

import (
	"errors"

	"solbot/pkg/solana"
)

var (
	// ErrSecretMalformed means the supplied secret is not a decodable keypair.
	ErrSecretMalformed = errors.New("wallet: secret is not a valid key")
	// ErrSecretMismatch means the secret's derived address differs from the
	// account's registered address.
	ErrSecretMismatch = errors.New("wallet: key does not match the registered wallet")
)

// Signer signs for exactly one operation and is then closed.
type Signer struct {
	kp *solana.Keypair
}

// AcquireSigner decodes the secret and verifies it against the registered
// address. The mismatch check happens here, before any network call can be
// made with the key. Callers must defer Close on every path.
func AcquireSigner(secret, registeredAddress string) (*Signer, error) {
	kp, err := solana.KeypairFromBase58(secret)
	if err != nil {
		return nil, ErrSecretMalformed
	}
	if kp.PublicAddress() != registeredAddress {
		kp.Zero()
		return nil, ErrSecretMismatch
	}
	return &Signer{kp: kp}, nil
}

// PublicAddress returns the derived public address.
func (s *Signer) PublicAddress() string {
	return s.kp.PublicAddress()
}

// SignAggregatorTx signs a base64 transaction built by the swap aggregator.
func (s *Signer) SignAggregatorTx(payloadBase64 string) (string, error) {
	return solana.SignServerTx(payloadBase64, s.kp)
}

// BuildTransfer builds a signed native transfer.
func (s *Signer) BuildTransfer(to, blockhash string, lamports uint64) (string, error) {
	return solana.BuildTransferTx(s.kp, to, blockhash, lamports)
}

// BuildTokenTransfer builds a signed SPL token transfer between existing
// token accounts.
func (s *Signer) BuildTokenTransfer(sourceAccount, destAccount, blockhash string, rawAmount uint64) (string, error) {
	return solana.BuildTokenTransferTx(s.kp, sourceAccount, destAccount, blockhash, rawAmount)
}

// Close wipes the key material. Safe to call more than once.
func (s *Signer) Close() {
	if s.kp != nil {
		s.kp.Zero()
		s.kp = nil
	}
}
