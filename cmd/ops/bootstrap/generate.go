package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// tokenByteLength gives 256 bits of entropy, 64 hex characters.
const tokenByteLength = 32

// adminKeyHashCost is the bcrypt cost for the stored admin key hash.
const adminKeyHashCost = 12

// GenerateSecureToken returns a hex-encoded random token from crypto/rand.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAdminKey returns the bcrypt hash stored as ADMIN_API_KEY_HASH. The
// API compares the X-Admin-Key header against it.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), adminKeyHashCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin key: %w", err)
	}
	return string(hash), nil
}

// newAdminKey returns the hash to store and the raw key to hand over once.
func newAdminKey() (stored, shown string, err error) {
	key, err := GenerateSecureToken()
	if err != nil {
		return "", "", err
	}
	hash, err := HashAdminKey(key)
	if err != nil {
		return "", "", err
	}
	return hash, key, nil
}
