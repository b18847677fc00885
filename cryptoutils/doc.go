// Package cryptoutils provides the cryptographic building blocks of the
// recovery protocol: AES-256-GCM sealing of vault payloads, ECIES wrapping of
// threshold shares for their recipients, and Argon2id passphrase sealing of
// the owner's backup share.
//
// All randomness comes from crypto/rand. Authentication failures on payload
// decryption surface as interfaces.ErrIntegrity, which callers must not
// conflate with storage "not found" failures.
package cryptoutils
