package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/custodia-vault/custodia/interfaces"
)

// Journal persists ledger snapshots so a restarted service resumes with the
// same vaults and event history. The ledger is the journal's single writer.
type Journal interface {
	// Persist durably records a snapshot, replacing any previous one.
	Persist(state JournalState) error

	// Load returns the last persisted snapshot, or ok=false when no
	// snapshot exists yet.
	Load() (state JournalState, ok bool, err error)
}

// JournalState is the serializable form of the ledger's full state.
type JournalState struct {
	NextID  uint64             `json:"next_id"`
	NextSeq uint64             `json:"next_seq"`
	Vaults  []journalVault     `json:"vaults"`
	Events  []interfaces.Event `json:"events"`
}

// journalVault mirrors interfaces.Vault with JSON-friendly field encodings.
type journalVault struct {
	ID               uint64        `json:"id"`
	Owner            string        `json:"owner"`
	Beneficiary      string        `json:"beneficiary"`
	StorageRef       string        `json:"storage_ref"`
	HeldShare        []byte        `json:"held_share"`
	InactivityPeriod time.Duration `json:"inactivity_period_ns"`
	GracePeriod      time.Duration `json:"grace_period_ns"`
	LastCheckIn      time.Time     `json:"last_check_in"`
	TriggerTime      time.Time     `json:"trigger_time"`
	Status           int           `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
}

// snapshotLocked builds the journal state. Callers hold at least the read lock.
func (l *Ledger) snapshotLocked() JournalState {
	state := JournalState{
		NextID:  l.nextID,
		NextSeq: l.nextSeq,
		Vaults:  make([]journalVault, 0, len(l.vaults)),
		Events:  append([]interfaces.Event(nil), l.events...),
	}

	for _, v := range l.vaults {
		state.Vaults = append(state.Vaults, journalVault{
			ID:               uint64(v.ID),
			Owner:            v.Owner.String(),
			Beneficiary:      v.Beneficiary.String(),
			StorageRef:       v.StorageRef.String(),
			HeldShare:        append([]byte(nil), v.HeldShare...),
			InactivityPeriod: v.InactivityPeriod,
			GracePeriod:      v.GracePeriod,
			LastCheckIn:      v.LastCheckIn,
			TriggerTime:      v.TriggerTime,
			Status:           int(v.Status),
			CreatedAt:        v.CreatedAt,
		})
	}

	sort.Slice(state.Vaults, func(i, j int) bool { return state.Vaults[i].ID < state.Vaults[j].ID })
	return state
}

// restore replays a journal snapshot into an empty ledger.
func (l *Ledger) restore() error {
	state, ok, err := l.journal.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	l.nextID = state.NextID
	l.nextSeq = state.NextSeq
	l.events = append([]interfaces.Event(nil), state.Events...)

	// Vaults are sorted by ID in the snapshot, so index order equals
	// creation order.
	for _, jv := range state.Vaults {
		owner, err := interfaces.NewIdentityFromHex(jv.Owner)
		if err != nil {
			return fmt.Errorf("vault %d: bad owner: %w", jv.ID, err)
		}
		beneficiary, err := interfaces.NewIdentityFromHex(jv.Beneficiary)
		if err != nil {
			return fmt.Errorf("vault %d: bad beneficiary: %w", jv.ID, err)
		}
		storageRef, err := interfaces.NewContentIDFromHex(jv.StorageRef)
		if err != nil {
			return fmt.Errorf("vault %d: bad storage ref: %w", jv.ID, err)
		}

		id := interfaces.VaultID(jv.ID)
		l.vaults[id] = &interfaces.Vault{
			ID:               id,
			Owner:            owner,
			Beneficiary:      beneficiary,
			StorageRef:       storageRef,
			HeldShare:        append([]byte(nil), jv.HeldShare...),
			InactivityPeriod: jv.InactivityPeriod,
			GracePeriod:      jv.GracePeriod,
			LastCheckIn:      jv.LastCheckIn,
			TriggerTime:      jv.TriggerTime,
			Status:           interfaces.VaultStatus(jv.Status),
			CreatedAt:        jv.CreatedAt,
		}
		l.byOwner[owner] = append(l.byOwner[owner], id)
		l.byBeneficiary[beneficiary] = append(l.byBeneficiary[beneficiary], id)
	}

	l.log.Info("Restored ledger from journal",
		"vaults", len(state.Vaults),
		"events", len(state.Events))
	return nil
}

// FileJournal stores the snapshot as a JSON file, written atomically via a
// temp file and rename.
type FileJournal struct {
	path string
}

// NewFileJournal creates a file journal at path, creating parent directories
// as needed.
func NewFileJournal(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &FileJournal{path: path}, nil
}

// Persist writes the snapshot.
func (j *FileJournal) Persist(state JournalState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("failed to replace journal: %w", err)
	}
	return nil
}

// Load reads the last snapshot if one exists.
func (j *FileJournal) Load() (JournalState, bool, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return JournalState{}, false, nil
	}
	if err != nil {
		return JournalState{}, false, fmt.Errorf("failed to read journal: %w", err)
	}

	var state JournalState
	if err := json.Unmarshal(data, &state); err != nil {
		return JournalState{}, false, fmt.Errorf("failed to decode journal: %w", err)
	}
	return state, true, nil
}
