package ledger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/custodia-vault/custodia/interfaces"
)

// Ledger is the authoritative state machine over vault records. It is the
// only writer of vault status, check-in and trigger timestamps, and the only
// holder of the timelock share until a successful claim.
//
// A single lock serializes all mutations, so no two mutating calls can
// observe the same pre-mutation state. Reads take the shared lock and see
// either the state before or after any given mutation, never an intermediate
// one. Time is read once per operation from the ledger's clock.
type Ledger struct {
	mu     sync.RWMutex
	clock  clock.Clock
	log    *slog.Logger
	vaults map[interfaces.VaultID]*interfaces.Vault
	nextID uint64

	byOwner       map[interfaces.Identity][]interfaces.VaultID
	byBeneficiary map[interfaces.Identity][]interfaces.VaultID

	events  []interfaces.Event
	nextSeq uint64
	subs    map[int]chan interfaces.Event
	nextSub int

	journal Journal
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, used by tests to advance time.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithJournal enables persistence: every successful mutation is written
// through to the journal, and New replays the journal's snapshot on startup.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// New creates a ledger. With a journal configured, previously persisted state
// is loaded before the ledger accepts calls.
func New(log *slog.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		clock:         clock.New(),
		log:           log,
		vaults:        make(map[interfaces.VaultID]*interfaces.Vault),
		byOwner:       make(map[interfaces.Identity][]interfaces.VaultID),
		byBeneficiary: make(map[interfaces.Identity][]interfaces.VaultID),
		subs:          make(map[int]chan interfaces.Event),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.journal != nil {
		if err := l.restore(); err != nil {
			return nil, fmt.Errorf("failed to restore ledger journal: %w", err)
		}
	}

	return l, nil
}

// Create validates parameters and admits a new vault in the active state.
func (l *Ledger) Create(params interfaces.CreateParams) (interfaces.Vault, error) {
	if err := validateCreateParams(params); err != nil {
		return interfaces.Vault{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.nextID++
	id := interfaces.VaultID(l.nextID)

	vault := &interfaces.Vault{
		ID:               id,
		Owner:            params.Owner,
		Beneficiary:      params.Beneficiary,
		StorageRef:       params.StorageRef,
		HeldShare:        append([]byte(nil), params.HeldShare...),
		InactivityPeriod: params.InactivityPeriod,
		GracePeriod:      params.GracePeriod,
		LastCheckIn:      now,
		Status:           interfaces.VaultActive,
		CreatedAt:        now,
	}

	l.vaults[id] = vault
	l.byOwner[params.Owner] = append(l.byOwner[params.Owner], id)
	l.byBeneficiary[params.Beneficiary] = append(l.byBeneficiary[params.Beneficiary], id)

	l.emit(interfaces.EventVaultCreated, id, now)
	l.persist()

	l.log.Info("Vault created",
		slog.Uint64("vault_id", uint64(id)),
		slog.String("owner", params.Owner.String()),
		slog.String("beneficiary", params.Beneficiary.String()),
		slog.Duration("inactivity_period", params.InactivityPeriod),
		slog.Duration("grace_period", params.GracePeriod))

	return snapshot(vault), nil
}

// CheckIn refreshes the owner's liveness. On a triggered vault a check-in
// also clears the trigger and reverts the vault to active, fully cancelling
// the in-progress recovery.
func (l *Ledger) CheckIn(caller interfaces.Identity, id interfaces.VaultID) (interfaces.Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, err := l.get(id)
	if err != nil {
		return interfaces.Vault{}, err
	}

	if caller != vault.Owner {
		return interfaces.Vault{}, interfaces.ErrNotOwner
	}

	if vault.Status.Terminal() {
		return interfaces.Vault{}, fmt.Errorf("%w: vault %d is %s", interfaces.ErrVaultTerminal, id, vault.Status)
	}

	now := l.clock.Now()
	reverted := vault.Status == interfaces.VaultTriggered

	vault.LastCheckIn = now
	if reverted {
		vault.TriggerTime = zeroTime
		vault.Status = interfaces.VaultActive
	}

	l.emit(interfaces.EventVaultCheckedIn, id, now)
	l.persist()

	l.log.Info("Vault check-in",
		slog.Uint64("vault_id", uint64(id)),
		slog.Bool("reverted_trigger", reverted))

	return snapshot(vault), nil
}

// Trigger starts recovery on an active vault whose inactivity period has
// elapsed. Anyone may call it: the time guard is the only protection the
// design needs, and an open trigger keeps the switch honest even if the
// beneficiary's own client is offline.
func (l *Ledger) Trigger(id interfaces.VaultID) (interfaces.Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, err := l.get(id)
	if err != nil {
		return interfaces.Vault{}, err
	}

	if vault.Status.Terminal() {
		return interfaces.Vault{}, fmt.Errorf("%w: vault %d is %s", interfaces.ErrVaultTerminal, id, vault.Status)
	}
	if vault.Status != interfaces.VaultActive {
		return interfaces.Vault{}, fmt.Errorf("%w: vault %d is %s", interfaces.ErrVaultNotActive, id, vault.Status)
	}

	now := l.clock.Now()
	deadline := vault.LastCheckIn.Add(vault.InactivityPeriod)
	if now.Before(deadline) {
		return interfaces.Vault{}, interfaces.NewTimeGuardError(interfaces.ErrInactivityNotElapsed, deadline.Sub(now))
	}

	vault.TriggerTime = now
	vault.Status = interfaces.VaultTriggered

	l.emit(interfaces.EventVaultTriggered, id, now)
	l.persist()

	l.log.Info("Vault triggered",
		slog.Uint64("vault_id", uint64(id)),
		slog.Duration("grace_period", vault.GracePeriod))

	return snapshot(vault), nil
}

// Claim releases the storage reference and the held share to the beneficiary
// once the grace window after triggering has elapsed. The vault becomes
// terminal; claim reveals the share, it does not erase ledger history.
func (l *Ledger) Claim(caller interfaces.Identity, id interfaces.VaultID) (interfaces.ContentID, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, err := l.get(id)
	if err != nil {
		return interfaces.ContentID{}, nil, err
	}

	if caller != vault.Beneficiary {
		return interfaces.ContentID{}, nil, interfaces.ErrNotBeneficiary
	}

	if vault.Status.Terminal() {
		return interfaces.ContentID{}, nil, fmt.Errorf("%w: vault %d is %s", interfaces.ErrVaultTerminal, id, vault.Status)
	}
	if vault.Status != interfaces.VaultTriggered {
		return interfaces.ContentID{}, nil, fmt.Errorf("%w: vault %d is %s", interfaces.ErrVaultNotTriggered, id, vault.Status)
	}

	now := l.clock.Now()
	claimable := vault.TriggerTime.Add(vault.GracePeriod)
	if now.Before(claimable) {
		return interfaces.ContentID{}, nil, interfaces.NewTimeGuardError(interfaces.ErrGraceNotElapsed, claimable.Sub(now))
	}

	vault.Status = interfaces.VaultClaimed

	l.emit(interfaces.EventVaultClaimed, id, now)
	l.persist()

	l.log.Info("Vault claimed",
		slog.Uint64("vault_id", uint64(id)),
		slog.String("beneficiary", caller.String()))

	return vault.StorageRef, append([]byte(nil), vault.HeldShare...), nil
}

// Cancel terminates the vault. Only the owner may cancel, from the active or
// triggered state.
func (l *Ledger) Cancel(caller interfaces.Identity, id interfaces.VaultID) (interfaces.Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vault, err := l.get(id)
	if err != nil {
		return interfaces.Vault{}, err
	}

	if caller != vault.Owner {
		return interfaces.Vault{}, interfaces.ErrNotOwner
	}

	if vault.Status.Terminal() {
		return interfaces.Vault{}, fmt.Errorf("%w: vault %d is %s", interfaces.ErrVaultTerminal, id, vault.Status)
	}

	now := l.clock.Now()
	vault.Status = interfaces.VaultCancelled

	l.emit(interfaces.EventVaultCancelled, id, now)
	l.persist()

	l.log.Info("Vault cancelled", slog.Uint64("vault_id", uint64(id)))

	return snapshot(vault), nil
}

// GetVault returns a snapshot of the vault record.
func (l *Ledger) GetVault(id interfaces.VaultID) (interfaces.Vault, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	vault, err := l.get(id)
	if err != nil {
		return interfaces.Vault{}, err
	}
	return snapshot(vault), nil
}

// Status derives the advisory status view at the ledger's current time.
func (l *Ledger) Status(id interfaces.VaultID) (interfaces.StatusInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	vault, err := l.get(id)
	if err != nil {
		return interfaces.StatusInfo{}, err
	}
	return ComputeStatus(snapshot(vault), l.clock.Now()), nil
}

// ListByOwner returns the owner's vault IDs in creation order.
func (l *Ledger) ListByOwner(owner interfaces.Identity) []interfaces.VaultID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]interfaces.VaultID(nil), l.byOwner[owner]...)
}

// ListByBeneficiary returns the beneficiary's vault IDs in creation order.
func (l *Ledger) ListByBeneficiary(beneficiary interfaces.Identity) []interfaces.VaultID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]interfaces.VaultID(nil), l.byBeneficiary[beneficiary]...)
}

// TotalVaults returns the number of vaults ever created.
func (l *Ledger) TotalVaults() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID
}

// get returns the live record. Callers hold the lock.
func (l *Ledger) get(id interfaces.VaultID) (*interfaces.Vault, error) {
	vault, ok := l.vaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", interfaces.ErrVaultNotFound, id)
	}
	return vault, nil
}

// persist writes through to the journal. Callers hold the write lock, so the
// journal always sees a consistent post-mutation state. A persistence failure
// is logged, not propagated: the in-memory ledger remains authoritative.
func (l *Ledger) persist() {
	if l.journal == nil {
		return
	}
	if err := l.journal.Persist(l.snapshotLocked()); err != nil {
		l.log.Error("Failed to persist ledger journal", "err", err)
	}
}

func validateCreateParams(params interfaces.CreateParams) error {
	switch {
	case params.Owner.IsZero():
		return fmt.Errorf("%w: owner must be set", interfaces.ErrInvalidParams)
	case params.Beneficiary.IsZero():
		return fmt.Errorf("%w: beneficiary must be set", interfaces.ErrInvalidParams)
	case params.Owner == params.Beneficiary:
		return fmt.Errorf("%w: owner and beneficiary must differ", interfaces.ErrInvalidParams)
	case params.StorageRef.IsZero():
		return fmt.Errorf("%w: storage reference must be set", interfaces.ErrInvalidParams)
	case len(params.HeldShare) == 0:
		return fmt.Errorf("%w: held share must not be empty", interfaces.ErrInvalidParams)
	case params.InactivityPeriod <= 0:
		return fmt.Errorf("%w: inactivity period must be positive", interfaces.ErrInvalidParams)
	case params.GracePeriod <= 0:
		return fmt.Errorf("%w: grace period must be positive", interfaces.ErrInvalidParams)
	}
	return nil
}

// snapshot copies the record so callers can never alias ledger-owned state.
func snapshot(v *interfaces.Vault) interfaces.Vault {
	out := *v
	out.HeldShare = append([]byte(nil), v.HeldShare...)
	return out
}
