// Package keys issues API keys and implements the admin key lifecycle.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

const (
	// SecretPrefix marks every issued secret.
	SecretPrefix = "ak_"
	// secretHexLength is the number of hex characters after the prefix.
	secretHexLength = 32
)

// randReader is the source of secret entropy; tests swap it out.
var randReader io.Reader = rand.Reader

// GenerateSecret returns a new bearer secret: the prefix followed by 32
// lowercase hex characters.
func GenerateSecret() (string, error) {
	return GenerateSecretWithReader(randReader)
}

// GenerateSecretWithReader generates a secret using the provided reader.
func GenerateSecretWithReader(r io.Reader) (string, error) {
	b := make([]byte, secretHexLength/2)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}

// LooksLikeSecret reports whether s has the shape of an issued secret.
func LooksLikeSecret(s string) bool {
	if !strings.HasPrefix(s, SecretPrefix) {
		return false
	}
	body := strings.TrimPrefix(s, SecretPrefix)
	if len(body) != secretHexLength {
		return false
	}
	for _, c := range body {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// Hint returns a display-safe form of a secret showing only its first 7 and
// last 4 characters.
func Hint(secret string) string {
	if len(secret) < 12 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:7] + strings.Repeat("*", 8) + secret[len(secret)-4:]
}

// NewID returns a new opaque record identifier.
func NewID() string {
	return uuid.New().String()
}
