package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/custodia-vault/custodia/interfaces"
)

// VaultKeySize is the AES-256 key size used for sealing vault payloads.
const VaultKeySize = 32

// gcmNonceSize is the standard 12-byte GCM nonce.
const gcmNonceSize = 12

// GenerateVaultKey creates a fresh high-entropy symmetric key for one vault.
func GenerateVaultKey() ([]byte, error) {
	key := make([]byte, VaultKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate vault key: %w", err)
	}
	return key, nil
}

// SealPayload encrypts a secret payload under the vault key using AES-256-GCM.
// The output is self-describing: [nonce][ciphertext+tag], sufficient for
// decryption given only the key.
func SealPayload(key, plaintext []byte) ([]byte, error) {
	if len(key) != VaultKeySize {
		return nil, fmt.Errorf("invalid vault key length: got %d, want %d", len(key), VaultKeySize)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenPayload decrypts a sealed payload produced by SealPayload.
//
// An authentication failure is reported as interfaces.ErrIntegrity so callers
// can distinguish "tampered or wrong key" from "data unavailable". A wrong
// key length is a plain validation error, not an integrity failure.
func OpenPayload(key, sealed []byte) ([]byte, error) {
	if len(key) != VaultKeySize {
		return nil, fmt.Errorf("invalid vault key length: got %d, want %d", len(key), VaultKeySize)
	}

	if len(sealed) < gcmNonceSize {
		return nil, errors.New("sealed payload too short")
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := sealed[:gcmNonceSize]
	ciphertext := sealed[gcmNonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrIntegrity, err)
	}

	return plaintext, nil
}

// WipeBytes zeroes sensitive material once it is no longer needed.
func WipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
