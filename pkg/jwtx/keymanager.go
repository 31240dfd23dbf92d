package jwtx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/omnipdf/qrauth/pkg/cryptox"
)

// Supported JWT signing algorithms. We sign with EdDSA only; the others are
// accepted when verifying upstream tokens.
const (
	AlgorithmEdDSA = "EdDSA"
	AlgorithmES256 = "ES256"
	AlgorithmRS256 = "RS256"
)

// KeyManager owns the service's signing keys and the KeySet that publishes
// and verifies them.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Issuer is the issuer claim (iss) that will be validated in tokens.
	Issuer string

	// Audience is the list of audience values (aud) that will be validated.
	Audience []string

	// NumKeys specifies how many ephemeral signing keys to generate.
	// Defaults to 1, capped at 5. Ignored when PEMKeys is set.
	NumKeys int

	// PEMKeys are PKCS8 Ed25519 private keys to load instead of generating
	// ephemeral ones, so credentials survive restarts.
	PEMKeys [][]byte
}

// NewKeyManager loads opts.PEMKeys, or generates ephemeral keys that only live
// in memory when none are given.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}

	km := &KeyManager{KeySet: NewKeySet()}
	km.Verifier = NewKeySetVerifier(km.KeySet, VerifyOptions{Issuer: opts.Issuer, Audience: opts.Audience})

	if len(opts.PEMKeys) > 0 {
		for i, pemKey := range opts.PEMKeys {
			kid, err := keyIDFromPEM(pemKey)
			if err != nil {
				return nil, fmt.Errorf("jwtx: key %d: %w", i+1, err)
			}
			signer, err := NewSignerEdDSA(kid, pemKey)
			if err != nil {
				return nil, fmt.Errorf("jwtx: key %d: %w", i+1, err)
			}
			if err := km.AddSigner(signer); err != nil {
				return nil, err
			}
		}
		return km, nil
	}

	numKeys := min(max(opts.NumKeys, 1), 5)
	for i := range numKeys {
		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key %d: %w", i+1, err)
		}
		kid, err := generateRandomKeyID()
		if err != nil {
			return nil, err
		}
		signer, err := NewSignerEdDSA(kid, pemKey)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to load key %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	return km, nil
}

// IsReady returns true if the KeyManager has valid keys loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady()
}

// GetSigner returns a randomly selected signer from the available keys.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner adds a signing key for both signing and verification.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return errors.New("jwtx: signer cannot be nil")
	}
	if err := signer.Validate(); err != nil {
		return err
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("jwtx: failed to add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}

// Sign signs claims with one of the active keys.
func (km *KeyManager) Sign(claims Claims) (string, error) {
	signer := km.GetSigner()
	if signer == nil {
		return "", errors.New("jwtx: no signing keys loaded")
	}
	return signer.Sign(claims)
}

// generateRandomKeyID creates a random key identifier, "qrauth-{token}".
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to generate key ID: %w", err)
	}
	return "qrauth-" + token, nil
}

// keyIDFromPEM derives a stable kid for a persisted key from its public half,
// so every replica loading the same file publishes the same kid.
func keyIDFromPEM(pemKey []byte) (string, error) {
	pub, err := cryptox.Ed25519PublicKeyFromPEM(pemKey)
	if err != nil {
		return "", err
	}
	return "qrauth-" + cryptox.KeyThumbprint(pub), nil
}
