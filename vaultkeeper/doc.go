// Package vaultkeeper implements the threshold secret-recovery protocol on
// top of the vault ledger and a content-addressed store.
//
// # Creation
//
// A fresh AES-256 key seals the secret; the ciphertext goes to the content
// store; the key is split 2-of-3 with Shamir's scheme. The beneficiary share
// and the backup share are handed back to the caller and leave the system's
// custody immediately. The timelock share is wrapped under the beneficiary's
// public key and held by the ledger until a successful claim.
//
// # Security property
//
// No single share reveals anything about the key. Recovery needs the
// beneficiary's share combined with either the ledger-released timelock
// share (obtainable only after inactivity plus grace elapse) or the owner's
// backup share (which the owner alone controls). A ledger operator cannot
// read the timelock share at all: it is ciphertext under the beneficiary's
// key.
//
// # Failure semantics
//
// The creation sequence is ordered so that a failure at any step leaves no
// ledger record. A stored ciphertext whose vault creation then failed is an
// orphaned but harmless blob: nothing references it and no key exists for
// it. During recovery, storage failures are retryable (ciphertext is
// immutable), while ErrInsufficientShares and ErrIntegrity are fatal to the
// attempt and deliberately kept distinct so callers know whether to find
// another share or retry storage.
package vaultkeeper
