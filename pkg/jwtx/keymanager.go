package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
)

// AlgorithmEdDSA is the only signing algorithm this service uses.
const AlgorithmEdDSA = "EdDSA"

// KeyManager owns the signing keys for an instance and the KeySet used to
// verify what they sign.
//
// Keys are ephemeral: they live only in memory, so every token becomes
// invalid on restart. That suits short-lived session and step-up tokens.
type KeyManager struct {
	Verifier *EdDSAVerifier
	KeySet   *KeySet

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures NewEphemeralKeyManager.
type KeyManagerOptions struct {
	Issuer   string
	Audience []string

	// NumKeys is clamped to [1,10]; zero means 3.
	NumKeys int
}

// NewEphemeralKeyManager generates NumKeys Ed25519 signers.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 3
	}
	numKeys = min(numKeys, 10)

	km := &KeyManager{KeySet: NewKeySet()}
	for i := range numKeys {
		kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key id: %w", err)
		}

		signer, err := GenerateSignerEdDSA("mfa-" + kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: key %d: %w", i+1, err)
		}

		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	km.Verifier = NewVerifierEdDSA(km.KeySet, opts.Issuer, opts.Audience)
	return km, nil
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string { return AlgorithmEdDSA }

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady() && km.NumSigners() > 0
}

// GetSigner returns a randomly selected signer, or nil when none are loaded.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner registers a signer for signing and its public key for verification.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("jwtx: signer cannot be nil")
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddJWK(signer.PublicJWK()); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}
