package interfaces

import (
	"errors"
	"fmt"
	"time"
)

// Ledger error taxonomy. Each category is a distinct sentinel so callers can
// tell "wait longer" from "you are not allowed" from "this vault is done".
var (
	// ErrVaultNotFound is returned for unknown vault IDs.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrInvalidParams is returned when creation parameters fail validation.
	// Nothing was created.
	ErrInvalidParams = errors.New("invalid vault parameters")

	// ErrNotOwner is returned when an owner-only operation is attempted by
	// anyone else.
	ErrNotOwner = errors.New("caller is not the vault owner")

	// ErrNotBeneficiary is returned when claim is attempted by anyone but the
	// beneficiary.
	ErrNotBeneficiary = errors.New("caller is not the vault beneficiary")

	// ErrInactivityNotElapsed is returned when trigger is attempted before
	// the inactivity period has run out.
	ErrInactivityNotElapsed = errors.New("inactivity period has not elapsed")

	// ErrGraceNotElapsed is returned when claim is attempted before the grace
	// window has run out.
	ErrGraceNotElapsed = errors.New("grace period has not elapsed")

	// ErrVaultNotActive is returned when trigger is attempted on a vault that
	// is not in the active state.
	ErrVaultNotActive = errors.New("vault is not active")

	// ErrVaultNotTriggered is returned when claim is attempted on a vault
	// that is not in the triggered state.
	ErrVaultNotTriggered = errors.New("vault is not triggered")

	// ErrVaultTerminal is returned when any mutation is attempted on a
	// claimed or cancelled vault.
	ErrVaultTerminal = errors.New("vault is in a terminal state")
)

// Recovery protocol errors.
var (
	// ErrIntegrity is returned when authenticated decryption fails. It means
	// the ciphertext was tampered with or the reconstructed key is wrong
	// (e.g. shares from different vaults were combined). Never conflated
	// with ErrContentNotFound.
	ErrIntegrity = errors.New("payload integrity check failed")

	// ErrInsufficientShares is returned when fewer shares than the threshold
	// are presented for reconstruction.
	ErrInsufficientShares = errors.New("insufficient shares to reconstruct key")
)

// TimeGuardError wraps a temporal-guard sentinel with the remaining wait, so
// callers learn how long until the operation becomes eligible.
type TimeGuardError struct {
	Guard     error
	Remaining time.Duration
}

// Error formats the guard with the remaining duration.
func (e *TimeGuardError) Error() string {
	return fmt.Sprintf("%s: %s remaining", e.Guard.Error(), e.Remaining)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *TimeGuardError) Unwrap() error {
	return e.Guard
}

// NewTimeGuardError builds a TimeGuardError for the given sentinel.
func NewTimeGuardError(guard error, remaining time.Duration) *TimeGuardError {
	return &TimeGuardError{Guard: guard, Remaining: remaining}
}
