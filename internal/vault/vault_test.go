package vault

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := New(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return v
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not-base64!!")
	assert.Error(t, err)

	_, err = New(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestPrepareEncryptsNewSecrets(t *testing.T) {
	v := newTestVault(t)

	stored, err := v.Prepare(map[string]interface{}{
		"shop_url": "https://shop.example.com",
		"api_key":  "super-secret",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", stored["shop_url"])
	sealed, _ := stored["api_key"].(string)
	assert.True(t, strings.HasPrefix(sealed, "enc:v1:"))
	assert.NotContains(t, sealed, "super-secret")

	revealed, err := v.Reveal(stored)
	require.NoError(t, err)
	assert.Equal(t, "super-secret", revealed["api_key"])
}

func TestPrepareCarriesForwardOmittedSecret(t *testing.T) {
	v := newTestVault(t)

	stored, err := v.Prepare(map[string]interface{}{"api_key": "original"}, nil)
	require.NoError(t, err)
	original := stored["api_key"]

	// Update without the secret: ciphertext must survive byte-for-byte.
	updated, err := v.Prepare(map[string]interface{}{"shop_url": "https://new.example.com"}, stored)
	require.NoError(t, err)
	assert.Equal(t, original, updated["api_key"])

	// Empty string counts as omitted too.
	updated, err = v.Prepare(map[string]interface{}{"api_key": ""}, stored)
	require.NoError(t, err)
	assert.Equal(t, original, updated["api_key"])
}

func TestPrepareReplacesSecretWhenProvided(t *testing.T) {
	v := newTestVault(t)

	stored, err := v.Prepare(map[string]interface{}{"db_password": "old"}, nil)
	require.NoError(t, err)

	updated, err := v.Prepare(map[string]interface{}{"db_password": "new"}, stored)
	require.NoError(t, err)
	assert.NotEqual(t, stored["db_password"], updated["db_password"])

	revealed, err := v.Reveal(updated)
	require.NoError(t, err)
	assert.Equal(t, "new", revealed["db_password"])
}

func TestRevealFailsWithDecryptionError(t *testing.T) {
	v := newTestVault(t)
	other := newTestVault(t)

	stored, err := v.Prepare(map[string]interface{}{"api_key": "secret"}, nil)
	require.NoError(t, err)

	// Different key simulates key rotation.
	_, err = other.Reveal(stored)
	require.Error(t, err)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "api_key", decErr.Field)

	// Corrupt ciphertext.
	stored["api_key"] = "enc:v1:" + base64.StdEncoding.EncodeToString([]byte("garbage"))
	_, err = v.Reveal(stored)
	assert.ErrorAs(t, err, &decErr)
}

func TestRevealLeavesNonSecretFieldsAlone(t *testing.T) {
	v := newTestVault(t)
	revealed, err := v.Reveal(map[string]interface{}{"shop_url": "https://shop.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", revealed["shop_url"])
}
