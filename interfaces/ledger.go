package interfaces

import "time"

// EventKind enumerates ledger mutations.
type EventKind string

const (
	EventVaultCreated   EventKind = "vault_created"
	EventVaultCheckedIn EventKind = "vault_checked_in"
	EventVaultTriggered EventKind = "vault_triggered"
	EventVaultClaimed   EventKind = "vault_claimed"
	EventVaultCancelled EventKind = "vault_cancelled"
)

// Event is one entry of the ledger's append-only log. Every successful
// mutation emits exactly one event; Seq is strictly increasing and gap-free,
// so observers can resume from the last sequence number they saw.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	VaultID   VaultID   `json:"vault_id"`
	Timestamp time.Time `json:"timestamp"`
}

// VaultLedger is the single source of truth for vault state. All mutations
// are atomic: either the full guard set passes and the full effect applies,
// or nothing changes.
type VaultLedger interface {
	// Create admits a new vault and returns its record. Validation errors
	// wrap ErrInvalidParams.
	Create(params CreateParams) (Vault, error)

	// CheckIn refreshes the owner's liveness. On a triggered vault it also
	// clears the trigger and reverts the vault to active.
	CheckIn(caller Identity, id VaultID) (Vault, error)

	// Trigger starts recovery once the inactivity period elapsed. Anyone may
	// call it; the time guard is the only protection needed.
	Trigger(id VaultID) (Vault, error)

	// Claim releases the storage reference and the held share to the
	// beneficiary after the grace window.
	Claim(caller Identity, id VaultID) (ContentID, []byte, error)

	// Cancel terminates the vault. Owner only, from active or triggered.
	Cancel(caller Identity, id VaultID) (Vault, error)

	// GetVault returns a snapshot of the vault record.
	GetVault(id VaultID) (Vault, error)

	// Status derives the advisory status view at the ledger's current time.
	Status(id VaultID) (StatusInfo, error)

	// ListByOwner returns the owner's vault IDs in creation order.
	ListByOwner(owner Identity) []VaultID

	// ListByBeneficiary returns the beneficiary's vault IDs in creation order.
	ListByBeneficiary(beneficiary Identity) []VaultID

	// TotalVaults returns the number of vaults ever created.
	TotalVaults() uint64

	// ListEvents returns all events with Seq > sinceSeq, in order.
	ListEvents(sinceSeq uint64) []Event

	// Subscribe registers a channel receiving all future events. The
	// returned function unsubscribes.
	Subscribe(buffer int) (<-chan Event, func())
}
