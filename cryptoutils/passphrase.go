package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passphrase sealing of the owner's backup share.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	saltSize     = 16
)

// SealShareWithPassphrase encrypts the owner's backup share under a key
// derived from a passphrase with Argon2id, for offline custody. The output is
// [salt][nonce][ciphertext+tag].
func SealShareWithPassphrase(share []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, VaultKeySize)
	defer WipeBytes(key)

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

	out := make([]byte, 0, saltSize+gcmNonceSize+len(share)+aesGCM.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aesGCM.Seal(out, nonce, share, nil)

	return out, nil
}

// OpenShareWithPassphrase decrypts a share sealed with SealShareWithPassphrase.
func OpenShareWithPassphrase(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < saltSize+gcmNonceSize {
		return nil, errors.New("sealed share too short")
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+gcmNonceSize]
	ciphertext := sealed[saltSize+gcmNonceSize:]

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, VaultKeySize)
	defer WipeBytes(key)

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	share, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("failed to open sealed share: wrong passphrase or corrupted data")
	}

	return share, nil
}
