package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// SecretKeys are the config fields the vault protects. Every driver shares
// this set; values under these keys are never stored in plaintext.
var SecretKeys = []string{"api_key", "db_password"}

// encPrefix marks a value as vault ciphertext so Prepare can tell stored
// ciphertext apart from a freshly submitted plaintext secret.
const encPrefix = "enc:v1:"

// DecryptionError wraps the underlying cause when stored ciphertext cannot
// be decrypted (corrupt data or a rotated key). Callers must treat it as
// fatal for the operation that needed the runtime config.
type DecryptionError struct {
	Field string
	Cause error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("vault: cannot decrypt field %q: %v", e.Field, e.Cause)
}

func (e *DecryptionError) Unwrap() error { return e.Cause }

// Vault encrypts and decrypts secret configuration fields with AES-GCM.
type Vault struct {
	key []byte
}

// New builds a vault from a base64-encoded 32-byte key.
func New(b64Key string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64Key))
	if err != nil {
		return nil, errors.Wrap(err, "vault key is not valid base64")
	}
	if len(key) != 32 {
		return nil, errors.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// Prepare merges a sanitized config with the previously stored one for
// persistence. Non-secret fields are taken from the sanitized config as-is.
// For each secret field: a newly submitted plaintext value is encrypted; an
// omitted or empty value carries the existing ciphertext forward unchanged.
func (v *Vault) Prepare(sanitized, existing map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(sanitized))
	for k, val := range sanitized {
		out[k] = val
	}

	for _, field := range SecretKeys {
		raw, present := out[field]
		plain, _ := raw.(string)

		if present && plain != "" {
			if strings.HasPrefix(plain, encPrefix) {
				// Already ciphertext (round-tripped from storage); keep it.
				continue
			}
			sealed, err := v.encrypt(plain)
			if err != nil {
				return nil, errors.Wrapf(err, "encrypt field %q", field)
			}
			out[field] = sealed
			continue
		}

		// Secret omitted on update: never silently drop the stored value.
		if prev, ok := existing[field].(string); ok && prev != "" {
			out[field] = prev
		} else {
			delete(out, field)
		}
	}
	return out, nil
}

// Reveal decrypts any secret fields present in a stored config, returning a
// copy safe for runtime driver use.
func (v *Vault) Reveal(stored map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(stored))
	for k, val := range stored {
		out[k] = val
	}
	for _, field := range SecretKeys {
		sealed, ok := out[field].(string)
		if !ok || sealed == "" {
			continue
		}
		if !strings.HasPrefix(sealed, encPrefix) {
			// Legacy plaintext value; passed through untouched.
			continue
		}
		plain, err := v.decrypt(sealed)
		if err != nil {
			return nil, &DecryptionError{Field: field, Cause: err}
		}
		out[field] = plain
	}
	return out, nil
}

func (v *Vault) encrypt(plain string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) decrypt(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, encPrefix))
	if err != nil {
		return "", errors.Wrap(err, "invalid base64 ciphertext")
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
