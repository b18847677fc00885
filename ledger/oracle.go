package ledger

import (
	"time"

	"github.com/custodia-vault/custodia/interfaces"
)

var zeroTime time.Time

// ComputeStatus derives the advisory status view from a vault snapshot and a
// wall-clock instant. It is a pure function: any caller given the same
// snapshot and time derives the identical result, and nothing here ever
// mutates ledger state. The ledger's transitions remain authoritative; in
// particular a true CanClaim can still be invalidated by an owner check-in
// that lands before the claim executes.
func ComputeStatus(v interfaces.Vault, now time.Time) interfaces.StatusInfo {
	info := interfaces.StatusInfo{Status: v.Status}

	switch v.Status {
	case interfaces.VaultActive:
		deadline := v.LastCheckIn.Add(v.InactivityPeriod)
		if now.Before(deadline) {
			info.TimeUntilTrigger = deadline.Sub(now)
		} else {
			info.CanTrigger = true
		}

	case interfaces.VaultTriggered:
		claimable := v.TriggerTime.Add(v.GracePeriod)
		if now.Before(claimable) {
			info.TimeUntilClaim = claimable.Sub(now)
		} else {
			info.CanClaim = true
		}
	}

	return info
}
