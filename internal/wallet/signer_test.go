package wallet

import (
	"errors"
	"testing"

	"solbot/pkg/solana"
)

func TestAcquireSigner(t *testing.T) {
	kp, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}
	secret := kp.SecretBase58()
	address := kp.PublicAddress()

	other, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}

	tests := []struct {
		name       string
		secret     string
		registered string
		wantErr    error
	}{
		{"matching key", secret, address, nil},
		{"wrong wallet", secret, other.PublicAddress(), ErrSecretMismatch},
		{"garbage secret", "not-a-key", address, ErrSecretMalformed},
		{"empty secret", "", address, ErrSecretMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := AcquireSigner(tt.secret, tt.registered)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error=%v, expected %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AcquireSigner returned error: %v", err)
			}
			defer s.Close()
			if s.PublicAddress() != address {
				t.Fatalf("address=%s, expected %s", s.PublicAddress(), address)
			}
		})
	}
}

func TestSignerCloseIsIdempotent(t *testing.T) {
	kp, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}
	s, err := AcquireSigner(kp.SecretBase58(), kp.PublicAddress())
	if err != nil {
		t.Fatalf("AcquireSigner returned error: %v", err)
	}
	s.Close()
	s.Close()
}
