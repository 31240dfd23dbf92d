package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// DisplayCodeAlphabet contains consonants only so a code can never spell a word
// and cannot be confused with digits.
const DisplayCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// DisplayCodeLength is the number of characters in a display code.
const DisplayCodeLength = 8

// GenerateToken creates a cryptographically secure random token of the specified byte length.
// The token is returned as a base64url-encoded string (URL-safe, no padding).
//
// QR session tokens use TokenSize256; anything below TokenSize128 is rejected because
// the token is a bearer capability.
func GenerateToken(size int) (string, error) {
	if size < TokenSize128 {
		return "", fmt.Errorf("token size must be at least %d bytes, got %d", TokenSize128, size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateDisplayCode returns a short human readable code drawn uniformly from
// DisplayCodeAlphabet. It carries ~34 bits of entropy and is never used as a
// lookup key, only as a visual confirmation next to the QR code.
func GenerateDisplayCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(DisplayCodeAlphabet)))
	code := make([]byte, DisplayCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate display code: %w", err)
		}
		code[i] = DisplayCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// FormatDisplayCode splits a display code into two halves for readability,
// e.g. "BCDF-GHJK".
func FormatDisplayCode(code string) string {
	if len(code) != DisplayCodeLength {
		return code
	}
	return code[:DisplayCodeLength/2] + "-" + code[DisplayCodeLength/2:]
}
