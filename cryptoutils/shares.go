package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// Share wrapping implements ECIES over P-256: ECDH key agreement with a fresh
// ephemeral key, SHA-256 key derivation, AES-GCM authenticated encryption.
// The timelock share is wrapped under the beneficiary's public key before the
// ledger ever holds it, so a ledger operator cannot read the share ahead of
// release.
//
// Wire format: [ephemeral key length (2 bytes)][ephemeral key][nonce][ciphertext].

// GenerateRecipientKey creates a new P-256 key pair for a share recipient.
// Returns the private key and public key in PEM format.
func GenerateRecipientKey() (privPEM, pubPEM []byte, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate recipient key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return privPEM, pubPEM, nil
}

// ParseRecipientPrivateKey parses a PEM-encoded P-256 private key.
func ParseRecipientPrivateKey(privPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try SEC 1 format if PKCS#8 fails
		ecKey, ecErr := x509.ParseECPrivateKey(block.Bytes)
		if ecErr != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return ecKey, nil
	}

	privateKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("not an ECDSA private key")
	}
	return privateKey, nil
}

// WrapShare encrypts a threshold share for a recipient identified by their
// public key PEM. A fresh ephemeral key is generated per call for forward
// secrecy.
func WrapShare(recipientPubPEM, share []byte) ([]byte, error) {
	block, _ := pem.Decode(recipientPubPEM)
	if block == nil {
		return nil, errors.New("failed to decode recipient public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recipient public key: %w", err)
	}

	publicKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}

	ephemeralKey, err := ecdsa.GenerateKey(publicKey.Curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	// Derive shared secret using ECDH
	x, _ := publicKey.Curve.ScalarMult(publicKey.X, publicKey.Y, ephemeralKey.D.Bytes())
	sharedSecret := sha256.Sum256(x.Bytes())

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesBlock, err := aes.NewCipher(sharedSecret[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	ciphertext := aesGCM.Seal(nil, nonce, share, nil)

	ephemeralPub := elliptic.Marshal(ephemeralKey.Curve, ephemeralKey.X, ephemeralKey.Y)

	result := make([]byte, 2+len(ephemeralPub)+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(result[0:2], uint16(len(ephemeralPub)))
	copy(result[2:2+len(ephemeralPub)], ephemeralPub)
	copy(result[2+len(ephemeralPub):2+len(ephemeralPub)+len(nonce)], nonce)
	copy(result[2+len(ephemeralPub)+len(nonce):], ciphertext)

	return result, nil
}

// UnwrapShare decrypts a share wrapped with WrapShare using the recipient's
// private key.
func UnwrapShare(recipientKey *ecdsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 2 {
		return nil, errors.New("wrapped share too short")
	}

	// Widen before adding: uint16 arithmetic would wrap for large length
	// prefixes and let a short buffer past the bounds check.
	ephemeralLen := int(binary.BigEndian.Uint16(wrapped[0:2]))
	if len(wrapped) < 2+ephemeralLen+gcmNonceSize {
		return nil, errors.New("wrapped share has invalid format")
	}

	ephemeralBytes := wrapped[2 : 2+ephemeralLen]
	x, y := elliptic.Unmarshal(recipientKey.Curve, ephemeralBytes)
	if x == nil {
		return nil, errors.New("failed to unmarshal ephemeral public key")
	}

	// Derive shared secret using ECDH
	xShared, _ := recipientKey.Curve.ScalarMult(x, y, recipientKey.D.Bytes())
	sharedSecret := sha256.Sum256(xShared.Bytes())

	nonceStart := 2 + ephemeralLen
	nonce := wrapped[nonceStart : nonceStart+gcmNonceSize]
	ciphertext := wrapped[nonceStart+gcmNonceSize:]

	aesBlock, err := aes.NewCipher(sharedSecret[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	share, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap share: %w", err)
	}

	return share, nil
}
