// Package auth provides API key generation and verification for the reconnode
// HTTP API. Configured keys are either plaintext or bcrypt hashes, so a node's
// config file never has to hold a usable secret.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// API key generation and validation constants
const (
	// APIKeyLength is the length of the random part of an API key
	APIKeyLength = 32
	// APIKeyPrefix is the standard prefix for all API keys
	APIKeyPrefix = "rn"

	// BcryptCost is the bcrypt cost for hashing API keys
	BcryptCost = 12
	// BcryptMaxInputLength is the maximum input length for bcrypt (72 bytes)
	BcryptMaxInputLength = 72

	minKeyLength = 15
	maxKeyLength = 50
)

// GenerateAPIKey creates a new random key of the form rn_<base32>.
func GenerateAPIKey() (string, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	if len(randomPart) > APIKeyLength {
		randomPart = randomPart[:APIKeyLength]
	}
	return APIKeyPrefix + "_" + randomPart, nil
}

// keyBytes applies the bcrypt input length workaround.
func keyBytes(apiKey string) []byte {
	b := []byte(apiKey)
	if len(b) > BcryptMaxInputLength {
		sum := sha256.Sum256(b)
		b = sum[:]
	}
	return b
}

// HashAPIKey creates a bcrypt hash of an API key for the config file.
func HashAPIKey(apiKey string) (string, error) {
	return HashAPIKeyWithCost(apiKey, BcryptCost)
}

// HashAPIKeyWithCost is HashAPIKey with an explicit bcrypt cost.
func HashAPIKeyWithCost(apiKey string, cost int) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword(keyBytes(apiKey), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// ValidateAPIKey checks if a provided API key matches the stored hash.
func ValidateAPIKey(apiKey, storedHash string) bool {
	if apiKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), keyBytes(apiKey)) == nil
}

// IsBcryptHash reports whether s looks like a bcrypt hash.
func IsBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// IsValidAPIKeyFormat checks if an API key has the generated format.
func IsValidAPIKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix+"_") {
		return false
	}
	if len(apiKey) < minKeyLength || len(apiKey) > maxKeyLength {
		return false
	}
	for _, char := range apiKey {
		if (char < 'a' || char > 'z') &&
			(char < 'A' || char > 'Z') &&
			(char < '0' || char > '9') &&
			char != '_' {
			return false
		}
	}
	return true
}

// CreateDisplayPrefix creates a safe-to-display prefix from a full API key.
func CreateDisplayPrefix(apiKey string) string {
	if !IsValidAPIKeyFormat(apiKey) {
		return "invalid_key"
	}
	parts := strings.SplitN(apiKey, "_", 2)
	if len(parts[1]) >= 8 {
		return fmt.Sprintf("%s_%s...", parts[0], parts[1][:8])
	}
	return fmt.Sprintf("%s_%s...", parts[0], parts[1])
}

// Keyring verifies presented keys against the configured entries. Keys that
// matched a bcrypt entry are remembered by digest so bcrypt runs once per key.
type Keyring struct {
	plain  [][]byte
	hashes []string

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]bool
}

// NewKeyring builds a keyring from config entries. Empty entries are ignored.
func NewKeyring(entries []string) *Keyring {
	k := &Keyring{verified: make(map[[sha256.Size]byte]bool)}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case IsBcryptHash(e):
			k.hashes = append(k.hashes, e)
		default:
			k.plain = append(k.plain, []byte(e))
		}
	}
	return k
}

// Len returns the number of usable entries.
func (k *Keyring) Len() int {
	return len(k.plain) + len(k.hashes)
}

// Valid reports whether apiKey matches any entry.
func (k *Keyring) Valid(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	presented := []byte(apiKey)
	match := 0
	for _, p := range k.plain {
		match |= subtle.ConstantTimeCompare(presented, p)
	}
	if match == 1 {
		return true
	}
	if len(k.hashes) == 0 {
		return false
	}

	digest := sha256.Sum256(presented)
	k.mu.RLock()
	ok := k.verified[digest]
	k.mu.RUnlock()
	if ok {
		return true
	}

	for _, h := range k.hashes {
		if ValidateAPIKey(apiKey, h) {
			k.mu.Lock()
			k.verified[digest] = true
			k.mu.Unlock()
			return true
		}
	}
	return false
}
