package auth

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(key, APIKeyPrefix+"_"))
		assert.Len(t, key, len(APIKeyPrefix)+1+APIKeyLength)
		assert.True(t, IsValidAPIKeyFormat(key), key)
		assert.False(t, seen[key], "keys are unique")
		seen[key] = true
	}
}

func TestHashAndValidateAPIKey(t *testing.T) {
	key := "rn_abcdefghijklmnopqrstuvwxyz234567"
	hash, err := HashAPIKeyWithCost(key, bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, key, hash)
	assert.True(t, IsBcryptHash(hash))
	assert.True(t, ValidateAPIKey(key, hash))
	assert.False(t, ValidateAPIKey(key+"x", hash))
	assert.False(t, ValidateAPIKey("", hash))
	assert.False(t, ValidateAPIKey(key, ""))

	_, err = HashAPIKeyWithCost("", bcrypt.MinCost)
	assert.Error(t, err)
}

func TestHashAPIKey_LongInput(t *testing.T) {
	long := strings.Repeat("k", 100)
	hash, err := HashAPIKeyWithCost(long, bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, ValidateAPIKey(long, hash))
	// Keys sharing the first 72 bytes must not collide.
	assert.False(t, ValidateAPIKey(strings.Repeat("k", 99)+"j", hash))
}

func TestIsValidAPIKeyFormat(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"rn_abcdefghijklmnopqrstuvwxyz234567", true},
		{"rn_ABCdef123_456xyz", true},
		{"sk_abcdefghijklmnopqrstuvwxyz", false},
		{"rn_short", false},
		{"rn_" + strings.Repeat("a", 60), false},
		{"rn_abcdefghij-klmnopq", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidAPIKeyFormat(tt.key), tt.key)
	}
}

func TestCreateDisplayPrefix(t *testing.T) {
	assert.Equal(t, "rn_abcdefgh...", CreateDisplayPrefix("rn_abcdefghijklmnopqrstuvwxyz234567"))
	assert.Equal(t, "invalid_key", CreateDisplayPrefix("not-a-key"))
}

func TestKeyring(t *testing.T) {
	hashedKey := "rn_hashedhashedhashedhashed"
	hash, err := HashAPIKeyWithCost(hashedKey, bcrypt.MinCost)
	require.NoError(t, err)

	k := NewKeyring([]string{"plain-key", "  ", hash, ""})
	assert.Equal(t, 2, k.Len())

	assert.True(t, k.Valid("plain-key"))
	assert.True(t, k.Valid(hashedKey))
	assert.True(t, k.Valid(hashedKey), "second lookup uses the verified cache")
	assert.False(t, k.Valid(hash), "the stored hash is not a credential")
	assert.False(t, k.Valid("plain-ke"))
	assert.False(t, k.Valid(""))

	assert.False(t, NewKeyring(nil).Valid("anything"))
}

func TestKeyring_Concurrent(t *testing.T) {
	key := "rn_concurrentconcurrent00"
	hash, err := HashAPIKeyWithCost(key, bcrypt.MinCost)
	require.NoError(t, err)
	k := NewKeyring([]string{hash})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, k.Valid(key))
			assert.False(t, k.Valid("wrong"))
		}()
	}
	wg.Wait()
}
