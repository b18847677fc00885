// Package ledger implements the vault lifecycle state machine.
//
// A vault moves along a fixed graph:
//
//	        create              trigger               claim
//	(none) ───────→ Active ───────────────→ Triggered ──────→ Claimed
//	                  ↑  ↑___________________│    │
//	                  │       check-in            │
//	                  └── cancel ←────────────────┘  (owner, from either)
//	                        ↓
//	                    Cancelled
//
// Claimed and Cancelled are terminal. Trigger requires the owner's
// inactivity period to have elapsed since the last check-in; claim requires
// the grace window after triggering to have elapsed and is restricted to the
// beneficiary. A check-in during the grace window clears the trigger and
// reverts the vault to active, which is why beneficiaries must re-validate
// eligibility right before claiming.
//
// The ledger mirrors the globally ordered, publicly auditable semantics of an
// on-chain contract: a single writer per record, an append-only event log
// (ListEvents, Subscribe), and append-only per-identity indexes whose order
// is creation order. The optional Journal persists all of it across restarts.
package ledger
