package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes  = 16
	iterations = 10000
	keyLength  = 64
)

var ErrInvalidHash = errors.New("invalid hash format")

// HashValue returns "salt:hash" where both parts are hex and the hash is
// PBKDF2-SHA512 keyed on the hex salt string.
func HashValue(value string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)
	return saltHex + ":" + derive(value, saltHex), nil
}

// VerifyHash reports whether value matches a hash produced by HashValue
func VerifyHash(value, stored string) (bool, error) {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok || saltHex == "" || hashHex == "" {
		return false, ErrInvalidHash
	}
	computed := derive(value, saltHex)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hashHex)) == 1, nil
}

func derive(value, saltHex string) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(value), []byte(saltHex), iterations, keyLength, sha512.New))
}
