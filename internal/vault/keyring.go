package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// Keyring encrypts and decrypts location plaintext. It is injected so key
// material can be rotated without touching the store; key bytes are never
// hardcoded anywhere in the repository.
type Keyring interface {
	Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error)
	Decrypt(ciphertext, nonce []byte) ([]byte, error)
}

var ErrMissingVaultKey = errors.New("VAULT_KEY environment variable is required (64 hex chars)")

// chachaKeyring is an XChaCha20-Poly1305 keyring. The 24-byte nonce space
// makes drawing a fresh random nonce per encryption safe; the nonce is
// returned to the caller and stored alongside the ciphertext, never reused.
type chachaKeyring struct {
	aead cipher.AEAD
}

// NewKeyring builds a keyring from a 32-byte key.
func NewKeyring(key []byte) (Keyring, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &chachaKeyring{aead: aead}, nil
}

// NewKeyringFromEnv builds a keyring from the hex-encoded VAULT_KEY env var.
func NewKeyringFromEnv() (Keyring, error) {
	raw := os.Getenv("VAULT_KEY")
	if raw == "" {
		return nil, ErrMissingVaultKey
	}
	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("VAULT_KEY must be %d hex-encoded bytes", chacha20poly1305.KeySize)
	}
	return NewKeyring(key)
}

func (k *chachaKeyring) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("draw nonce: %w", err)
	}
	return k.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (k *chachaKeyring) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt location: %w", err)
	}
	return plaintext, nil
}
