// Package interfaces defines the core types and contracts of the custodia
// inheritance vault system, separating interface definitions from
// implementations.
//
// # Vault Types
//
// Vault: the central record, one per secret under protection, with its
// lifecycle status (active, triggered, claimed, cancelled), the two immutable
// durations (inactivity period and grace period), and the timelock share the
// ledger holds on behalf of the beneficiary.
//
// SecretShares: the three shares of one 2-of-3 split of a vault key. No two
// parties acting alone can recover the secret; any two shares together can.
//
// # Ledger Contract
//
// VaultLedger: role- and time-gated state transitions over vault records,
// with an append-only event log and per-owner/per-beneficiary indexes. All
// mutations are atomic.
//
// # Storage Contract
//
// StorageBackend: content-addressed blob storage for sealed payloads across
// multiple backend types (file, S3, IPFS, Vault).
//
// StorageBackendFactory: creates storage backends from URI strings and
// aggregates them for redundant storage.
//
// # Error Taxonomy
//
// Sentinel errors split failures into validation (ErrInvalidParams),
// authorization (ErrNotOwner, ErrNotBeneficiary), temporal guards
// (ErrInactivityNotElapsed, ErrGraceNotElapsed, carried inside
// TimeGuardError with the remaining wait), state (ErrVaultNotFound,
// ErrVaultNotActive, ErrVaultNotTriggered, ErrVaultTerminal), cryptographic
// (ErrIntegrity, ErrInsufficientShares) and storage (ErrContentNotFound,
// ErrBackendUnavailable) categories.
package interfaces
