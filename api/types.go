package api

import (
	"time"

	"github.com/custodia-vault/custodia/interfaces"
)

// IdentityHeader carries the caller's already-authenticated account address.
// Wallet signature verification happens upstream of this service; handlers
// trust the header the way an on-chain contract trusts msg.sender.
const IdentityHeader = "X-Custodia-Identity"

// CreateVaultRequest is the body of POST /api/vaults. The owner is the
// caller identity from the header.
type CreateVaultRequest struct {
	// Secret is the base64-encoded payload to protect.
	Secret []byte `json:"secret"`

	// Beneficiary is the hex address allowed to claim.
	Beneficiary string `json:"beneficiary"`

	// BeneficiaryPubKey is the beneficiary's PEM public key used to wrap the
	// timelock share.
	BeneficiaryPubKey string `json:"beneficiary_pub_key"`

	// InactivityPeriodSecs is how long the owner may stay silent, in seconds.
	InactivityPeriodSecs int64 `json:"inactivity_period_secs"`

	// GracePeriodSecs is the post-trigger grace window, in seconds.
	GracePeriodSecs int64 `json:"grace_period_secs"`
}

// CreateVaultResponse returns the new vault ID and all three shares. The
// service keeps none of them in usable form: the timelock share is held by
// the ledger only as ciphertext under the beneficiary's key.
type CreateVaultResponse struct {
	VaultID          uint64 `json:"vault_id"`
	BeneficiaryShare []byte `json:"beneficiary_share"`
	TimelockShare    []byte `json:"timelock_share"`
	BackupShare      []byte `json:"backup_share"`
	StorageRef       string `json:"storage_ref"`
}

// VaultResponse is a vault snapshot. The held share is deliberately absent;
// it is only ever released through claim.
type VaultResponse struct {
	ID                   uint64     `json:"id"`
	Owner                string     `json:"owner"`
	Beneficiary          string     `json:"beneficiary"`
	StorageRef           string     `json:"storage_ref"`
	InactivityPeriodSecs int64      `json:"inactivity_period_secs"`
	GracePeriodSecs      int64      `json:"grace_period_secs"`
	LastCheckIn          time.Time  `json:"last_check_in"`
	TriggerTime          *time.Time `json:"trigger_time,omitempty"`
	Status               string     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
}

// NewVaultResponse converts a ledger snapshot to its wire form.
func NewVaultResponse(v interfaces.Vault) VaultResponse {
	resp := VaultResponse{
		ID:                   uint64(v.ID),
		Owner:                v.Owner.String(),
		Beneficiary:          v.Beneficiary.String(),
		StorageRef:           v.StorageRef.String(),
		InactivityPeriodSecs: int64(v.InactivityPeriod.Seconds()),
		GracePeriodSecs:      int64(v.GracePeriod.Seconds()),
		LastCheckIn:          v.LastCheckIn,
		Status:               v.Status.String(),
		CreatedAt:            v.CreatedAt,
	}
	if !v.TriggerTime.IsZero() {
		t := v.TriggerTime
		resp.TriggerTime = &t
	}
	return resp
}

// StatusResponse is the advisory status view of GET /api/vaults/{id}/status.
type StatusResponse struct {
	Status               string `json:"status"`
	TimeUntilTriggerSecs int64  `json:"time_until_trigger_secs"`
	TimeUntilClaimSecs   int64  `json:"time_until_claim_secs"`
	CanTrigger           bool   `json:"can_trigger"`
	CanClaim             bool   `json:"can_claim"`
}

// NewStatusResponse converts oracle output to its wire form.
func NewStatusResponse(info interfaces.StatusInfo) StatusResponse {
	return StatusResponse{
		Status:               info.Status.String(),
		TimeUntilTriggerSecs: int64(info.TimeUntilTrigger.Seconds()),
		TimeUntilClaimSecs:   int64(info.TimeUntilClaim.Seconds()),
		CanTrigger:           info.CanTrigger,
		CanClaim:             info.CanClaim,
	}
}

// ClaimResponse releases the storage reference and the wrapped timelock
// share to the beneficiary. The share is ciphertext under the beneficiary's
// public key; unwrapping and combining happen client-side.
type ClaimResponse struct {
	StorageRef string `json:"storage_ref"`
	HeldShare  []byte `json:"held_share"`
}

// VaultListResponse lists vault IDs in creation order.
type VaultListResponse struct {
	VaultIDs []uint64 `json:"vault_ids"`
}

// VaultCountResponse carries the total number of vaults ever created.
type VaultCountResponse struct {
	Total uint64 `json:"total"`
}

// EventsResponse is a slice of the append-only event log.
type EventsResponse struct {
	Events []interfaces.Event `json:"events"`
}

// ErrorResponse is the body of every non-2xx reply. RemainingSecs is set for
// temporal-guard failures so callers learn how long to wait.
type ErrorResponse struct {
	Error         string `json:"error"`
	RemainingSecs *int64 `json:"remaining_secs,omitempty"`
}
