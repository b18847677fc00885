package interfaces

import (
	"errors"
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Identity is a 20-byte account address identifying an owner or beneficiary.
// The service does not authenticate identities itself; callers arrive with an
// already-verified address (wallet signature verification happens upstream).
type Identity [20]byte

// NewIdentityFromHex parses a 0x-prefixed or bare 40-character hex address.
func NewIdentityFromHex(source string) (Identity, error) {
	if !ethcommon.IsHexAddress(source) {
		return Identity{}, fmt.Errorf("invalid identity %q: must be a 20-byte hex address", source)
	}
	return Identity(ethcommon.HexToAddress(source)), nil
}

// NewIdentityFromBytes creates an identity from raw bytes.
func NewIdentityFromBytes(source []byte) (Identity, error) {
	if len(source) != 20 {
		return Identity{}, errors.New("invalid identity length: must be 20 bytes")
	}
	var id Identity
	copy(id[:], source)
	return id, nil
}

// String returns the checksummed hex form.
func (id Identity) String() string {
	return ethcommon.Address(id).Hex()
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// VaultID identifies a vault. IDs are strictly increasing, assigned at
// creation and never reused, so they double as creation order.
type VaultID uint64

// VaultStatus enumerates the lifecycle states of a vault.
type VaultStatus int

const (
	// VaultActive means the owner is checking in and the secret is locked.
	VaultActive VaultStatus = iota

	// VaultTriggered means the inactivity period elapsed and recovery was
	// initiated; the grace window is running.
	VaultTriggered

	// VaultClaimed means the beneficiary has claimed the held share. Terminal.
	VaultClaimed

	// VaultCancelled means the owner shut the vault down. Terminal.
	VaultCancelled
)

// String returns the status name.
func (s VaultStatus) String() string {
	switch s {
	case VaultActive:
		return "active"
	case VaultTriggered:
		return "triggered"
	case VaultClaimed:
		return "claimed"
	case VaultCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status permits no further transitions.
func (s VaultStatus) Terminal() bool {
	return s == VaultClaimed || s == VaultCancelled
}

// Vault is a snapshot of one vault record as held by the ledger.
//
// HeldShare is the timelock share, encrypted under the beneficiary's public
// key before the ledger ever sees it. TriggerTime is the zero time unless
// Status is VaultTriggered.
type Vault struct {
	ID               VaultID
	Owner            Identity
	Beneficiary      Identity
	StorageRef       ContentID
	HeldShare        []byte
	InactivityPeriod time.Duration
	GracePeriod      time.Duration
	LastCheckIn      time.Time
	TriggerTime      time.Time
	Status           VaultStatus
	CreatedAt        time.Time
}

// CreateParams carries everything the ledger needs to admit a new vault.
type CreateParams struct {
	Owner            Identity
	Beneficiary      Identity
	StorageRef       ContentID
	HeldShare        []byte
	InactivityPeriod time.Duration
	GracePeriod      time.Duration
}

// SecretShares is the output of one 2-of-3 split of a vault key.
//
// BeneficiaryShare and BackupShare leave the system's custody the moment they
// are returned: the caller delivers the former to the beneficiary out of band
// and secures the latter offline. TimelockShare is what the ledger holds
// (after recipient encryption) until a successful claim.
type SecretShares struct {
	BeneficiaryShare []byte
	TimelockShare    []byte
	BackupShare      []byte
}

// StatusInfo is the advisory view computed by the status oracle from a vault
// snapshot and a wall-clock instant. It never feeds back into the ledger.
type StatusInfo struct {
	Status VaultStatus

	// TimeUntilTrigger is how long until the trigger guard opens, floored at
	// zero. Zero whenever the vault is not active.
	TimeUntilTrigger time.Duration

	// TimeUntilClaim is how long until the claim guard opens, floored at
	// zero. Zero whenever the vault is not triggered.
	TimeUntilClaim time.Duration

	// CanTrigger mirrors the ledger's trigger guard.
	CanTrigger bool

	// CanClaim mirrors the ledger's claim guard. Always false off-Triggered.
	CanClaim bool
}
