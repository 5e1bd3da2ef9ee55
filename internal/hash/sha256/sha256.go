// Package sha256 derives the document identity used to skip PDFs that were
// already scanned.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Hasher digests PDF bodies. The zero value is ready to use.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the 64-character lowercase hex digest of a PDF body. An empty
// body is ErrInvalid.
func (Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("hash document: empty body: %w", minutes.ErrInvalid)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
