package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	pepperLength = 32
	pepperInfo   = "omnipdf-qrauth token fingerprint v1"
)

// Fingerprinter derives stable, non-reversible lookup keys for bearer tokens.
// Stores only ever see fingerprints, so a leaked database cannot be replayed
// against the API.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter derives the HMAC key from secret using HKDF-SHA256. An empty
// secret produces a random key, which is only suitable for a single process with
// a non-shared store.
func NewFingerprinter(secret string) (*Fingerprinter, error) {
	ikm := []byte(secret)
	if len(ikm) == 0 {
		ikm = make([]byte, pepperLength)
		if _, err := rand.Read(ikm); err != nil {
			return nil, fmt.Errorf("failed to generate pepper: %w", err)
		}
	}

	key := make([]byte, pepperLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(pepperInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive pepper: %w", err)
	}
	return &Fingerprinter{key: key}, nil
}

// MustFingerprinter is like NewFingerprinter but panics on error.
func MustFingerprinter(secret string) *Fingerprinter {
	f, err := NewFingerprinter(secret)
	if err != nil {
		panic(fmt.Sprintf("cryptox: %v", err))
	}
	return f
}

// Fingerprint returns hex(HMAC-SHA256(key, token)), 64 characters.
func (f *Fingerprinter) Fingerprint(token string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Short returns the first 12 characters of the fingerprint, safe to log.
func (f *Fingerprinter) Short(token string) string {
	return f.Fingerprint(token)[:12]
}
