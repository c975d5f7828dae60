// Package auth checks admin credentials and keeps admin sessions.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"math/big"
)

const (
	// DefaultUsername and DefaultPassword are used when no admin
	// credentials are configured.
	DefaultUsername = "admin"
	DefaultPassword = "admin123"

	tokenBytes = 32
)

// ErrInvalidCredentials is returned when a login does not match the admin account.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is the single admin account.
type Credentials struct {
	Username string
	Password string
}

// IsDefault reports whether the built-in credentials are in use.
func (c Credentials) IsDefault() bool {
	return c.Username == DefaultUsername && c.Password == DefaultPassword
}

// Verify compares a login attempt against the account in constant time.
func (c Credentials) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare(hash(username), hash(c.Username))
	passOK := subtle.ConstantTimeCompare(hash(password), hash(c.Password))
	if userOK&passOK != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func hash(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

// GenerateToken returns a random base62 session token.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return encodeBase62(raw), nil
}

// base62Alphabet includes A-Za-z0-9 (no special characters)
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func encodeBase62(data []byte) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(62)
	zero := big.NewInt(0)
	var result []byte

	for num.Cmp(zero) > 0 {
		mod := new(big.Int)
		num.DivMod(num, base, mod)
		result = append([]byte{base62Alphabet[mod.Int64()]}, result...)
	}

	// Preserve leading zeros
	for _, b := range data {
		if b != 0 {
			break
		}
		result = append([]byte{'0'}, result...)
	}

	if len(result) == 0 {
		return "0"
	}
	return string(result)
}
