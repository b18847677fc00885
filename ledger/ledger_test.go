package ledger

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-vault/custodia/interfaces"
)

const (
	day              = 24 * time.Hour
	inactivityPeriod = 180 * day
	gracePeriod      = 30 * day
)

var (
	testOwner       = mustIdentity("0x1111111111111111111111111111111111111111")
	testBeneficiary = mustIdentity("0x2222222222222222222222222222222222222222")
	testStranger    = mustIdentity("0x3333333333333333333333333333333333333333")
)

func mustIdentity(hex string) interfaces.Identity {
	id, err := interfaces.NewIdentityFromHex(hex)
	if err != nil {
		panic(err)
	}
	return id
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T) (*Ledger, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	l, err := New(testLogger(), WithClock(mock))
	require.NoError(t, err, "Failed to create ledger")
	return l, mock
}

func testParams() interfaces.CreateParams {
	return interfaces.CreateParams{
		Owner:            testOwner,
		Beneficiary:      testBeneficiary,
		StorageRef:       interfaces.ComputeID([]byte("sealed payload")),
		HeldShare:        []byte("wrapped timelock share"),
		InactivityPeriod: inactivityPeriod,
		GracePeriod:      gracePeriod,
	}
}

func TestLedgerCreate(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Create should succeed with valid parameters")

	assert.Equal(t, interfaces.VaultID(1), vault.ID, "First vault should get ID 1")
	assert.Equal(t, interfaces.VaultActive, vault.Status, "New vault should be active")
	assert.Equal(t, mock.Now(), vault.LastCheckIn, "Creation counts as the first check-in")
	assert.Equal(t, mock.Now(), vault.CreatedAt, "CreatedAt should be the creation time")
	assert.True(t, vault.TriggerTime.IsZero(), "TriggerTime should be unset on a new vault")

	second, err := l.Create(testParams())
	require.NoError(t, err, "Second create should succeed")
	assert.Equal(t, interfaces.VaultID(2), second.ID, "Vault IDs should be strictly increasing")
	assert.Equal(t, uint64(2), l.TotalVaults(), "TotalVaults should count both vaults")
}

func TestLedgerCreateValidation(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := []struct {
		name   string
		mutate func(*interfaces.CreateParams)
	}{
		{"missing owner", func(p *interfaces.CreateParams) { p.Owner = interfaces.Identity{} }},
		{"missing beneficiary", func(p *interfaces.CreateParams) { p.Beneficiary = interfaces.Identity{} }},
		{"owner equals beneficiary", func(p *interfaces.CreateParams) { p.Beneficiary = p.Owner }},
		{"missing storage ref", func(p *interfaces.CreateParams) { p.StorageRef = interfaces.ContentID{} }},
		{"empty held share", func(p *interfaces.CreateParams) { p.HeldShare = nil }},
		{"zero inactivity period", func(p *interfaces.CreateParams) { p.InactivityPeriod = 0 }},
		{"negative grace period", func(p *interfaces.CreateParams) { p.GracePeriod = -time.Hour }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			tc.mutate(&params)

			_, err := l.Create(params)
			assert.ErrorIs(t, err, interfaces.ErrInvalidParams, "Create should reject %s", tc.name)
		})
	}

	assert.Equal(t, uint64(0), l.TotalVaults(), "Failed creates should not admit vaults")
}

// Full 180-day inactivity / 30-day grace walk-through: trigger is refused one
// day early, succeeds at the deadline, claim is refused during grace and
// succeeds once it elapses, and the vault is terminal afterwards.
func TestLedgerTriggerClaimLifecycle(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	// One day before the inactivity deadline the guard must hold and report
	// the exact remaining wait.
	mock.Add(179 * day)
	_, err = l.Trigger(vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrInactivityNotElapsed, "Trigger should be refused before the deadline")

	var guardErr *interfaces.TimeGuardError
	require.ErrorAs(t, err, &guardErr, "Temporal refusal should carry the remaining wait")
	assert.Equal(t, day, guardErr.Remaining, "Remaining wait should be exactly one day")

	// At the deadline the guard opens.
	mock.Add(day)
	triggered, err := l.Trigger(vault.ID)
	require.NoError(t, err, "Trigger should succeed once the inactivity period elapsed")
	assert.Equal(t, interfaces.VaultTriggered, triggered.Status, "Vault should be triggered")
	assert.Equal(t, mock.Now(), triggered.TriggerTime, "TriggerTime should record the trigger instant")

	// A second trigger on a triggered vault is a state conflict, not a
	// temporal one.
	_, err = l.Trigger(vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotActive, "Trigger should be refused on a triggered vault")

	// Claim during the grace window is refused with the remaining wait.
	mock.Add(29 * day)
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrGraceNotElapsed, "Claim should be refused during the grace window")
	require.ErrorAs(t, err, &guardErr, "Temporal refusal should carry the remaining wait")
	assert.Equal(t, day, guardErr.Remaining, "Remaining grace should be exactly one day")

	mock.Add(day)
	storageRef, heldShare, err := l.Claim(testBeneficiary, vault.ID)
	require.NoError(t, err, "Claim should succeed once the grace window elapsed")
	assert.Equal(t, vault.StorageRef, storageRef, "Claim should release the storage reference")
	assert.Equal(t, []byte("wrapped timelock share"), heldShare, "Claim should release the held share")

	claimed, err := l.GetVault(vault.ID)
	require.NoError(t, err, "Failed to fetch claimed vault")
	assert.Equal(t, interfaces.VaultClaimed, claimed.Status, "Vault should be claimed")

	// Claimed is terminal for every mutation.
	_, err = l.CheckIn(testOwner, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "CheckIn should be refused on a claimed vault")
	_, err = l.Trigger(vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Trigger should be refused on a claimed vault")
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Second claim should be refused")
	_, err = l.Cancel(testOwner, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Cancel should be refused on a claimed vault")
}

// A check-in resets the inactivity countdown from the moment of the check-in,
// not from creation.
func TestLedgerCheckInResetsCountdown(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	mock.Add(170 * day)
	_, err = l.CheckIn(testOwner, vault.ID)
	require.NoError(t, err, "CheckIn should succeed on an active vault")

	// 170 days after the check-in is only day 340 of the original countdown,
	// but the reset countdown still has 10 days to run.
	mock.Add(170 * day)
	_, err = l.Trigger(vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrInactivityNotElapsed, "Trigger should be refused against the reset countdown")

	var guardErr *interfaces.TimeGuardError
	require.ErrorAs(t, err, &guardErr, "Temporal refusal should carry the remaining wait")
	assert.Equal(t, 10*day, guardErr.Remaining, "Countdown should run from the last check-in")

	mock.Add(10 * day)
	_, err = l.Trigger(vault.ID)
	assert.NoError(t, err, "Trigger should succeed once the reset countdown elapsed")
}

// A check-in on a triggered vault cancels the in-progress recovery entirely.
func TestLedgerCheckInRevertsTrigger(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	mock.Add(inactivityPeriod)
	_, err = l.Trigger(vault.ID)
	require.NoError(t, err, "Failed to trigger vault")

	mock.Add(29 * day)
	reverted, err := l.CheckIn(testOwner, vault.ID)
	require.NoError(t, err, "CheckIn should succeed on a triggered vault")
	assert.Equal(t, interfaces.VaultActive, reverted.Status, "CheckIn should revert the vault to active")
	assert.True(t, reverted.TriggerTime.IsZero(), "CheckIn should clear the trigger time")

	// The old grace window is gone: even after it would have elapsed, claim
	// sees an active vault.
	mock.Add(day)
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotTriggered, "Claim should be refused after the trigger was reverted")

	// And the inactivity countdown restarts from the reverting check-in.
	_, err = l.Trigger(vault.ID)
	var guardErr *interfaces.TimeGuardError
	require.ErrorAs(t, err, &guardErr, "Trigger should be refused against the restarted countdown")
	assert.Equal(t, inactivityPeriod-day, guardErr.Remaining, "Countdown should run from the reverting check-in")
}

func TestLedgerAuthorization(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	_, err = l.CheckIn(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner, "CheckIn should be owner-only")
	_, err = l.CheckIn(testStranger, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner, "CheckIn should be owner-only")

	_, err = l.Cancel(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner, "Cancel should be owner-only")

	mock.Add(inactivityPeriod)
	_, err = l.Trigger(vault.ID)
	require.NoError(t, err, "Failed to trigger vault")

	mock.Add(gracePeriod)
	_, _, err = l.Claim(testOwner, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotBeneficiary, "Claim should be beneficiary-only")
	_, _, err = l.Claim(testStranger, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotBeneficiary, "Claim should be beneficiary-only")

	// Authorization failures must not mutate: the rightful beneficiary can
	// still claim.
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	assert.NoError(t, err, "Rightful beneficiary should still be able to claim")
}

func TestLedgerCancelIsTerminal(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	cancelled, err := l.Cancel(testOwner, vault.ID)
	require.NoError(t, err, "Cancel should succeed on an active vault")
	assert.Equal(t, interfaces.VaultCancelled, cancelled.Status, "Vault should be cancelled")

	// No amount of elapsed time reopens a cancelled vault.
	mock.Add(inactivityPeriod + gracePeriod)
	_, err = l.Trigger(vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Trigger should be refused on a cancelled vault")
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Claim should be refused on a cancelled vault")
	_, err = l.CheckIn(testOwner, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "CheckIn should be refused on a cancelled vault")
	_, err = l.Cancel(testOwner, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Second cancel should be refused")
}

func TestLedgerCancelWhileTriggered(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	mock.Add(inactivityPeriod)
	_, err = l.Trigger(vault.ID)
	require.NoError(t, err, "Failed to trigger vault")

	cancelled, err := l.Cancel(testOwner, vault.ID)
	require.NoError(t, err, "Owner should be able to cancel a triggered vault")
	assert.Equal(t, interfaces.VaultCancelled, cancelled.Status, "Vault should be cancelled")

	mock.Add(gracePeriod)
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	assert.ErrorIs(t, err, interfaces.ErrVaultTerminal, "Claim should be refused after cancellation")
}

func TestLedgerUnknownVault(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.GetVault(42)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound, "GetVault should report unknown IDs")
	_, err = l.Status(42)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound, "Status should report unknown IDs")
	_, err = l.CheckIn(testOwner, 42)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound, "CheckIn should report unknown IDs")
	_, err = l.Trigger(42)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound, "Trigger should report unknown IDs")
	_, _, err = l.Claim(testBeneficiary, 42)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound, "Claim should report unknown IDs")
	_, err = l.Cancel(testOwner, 42)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound, "Cancel should report unknown IDs")
}

func TestLedgerIdentityIndexes(t *testing.T) {
	l, _ := newTestLedger(t)

	otherOwner := testStranger

	first, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create first vault")

	params := testParams()
	params.Owner = otherOwner
	second, err := l.Create(params)
	require.NoError(t, err, "Failed to create second vault")

	third, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create third vault")

	assert.Equal(t, []interfaces.VaultID{first.ID, third.ID}, l.ListByOwner(testOwner),
		"Owner index should list vaults in creation order")
	assert.Equal(t, []interfaces.VaultID{second.ID}, l.ListByOwner(otherOwner),
		"Owner index should be per-identity")
	assert.Equal(t, []interfaces.VaultID{first.ID, second.ID, third.ID}, l.ListByBeneficiary(testBeneficiary),
		"Beneficiary index should list vaults in creation order")
	assert.Empty(t, l.ListByOwner(testBeneficiary), "Unknown owner should have no vaults")

	// Terminal vaults stay in the indexes; the log is append-only.
	_, err = l.Cancel(testOwner, first.ID)
	require.NoError(t, err, "Failed to cancel vault")
	assert.Equal(t, []interfaces.VaultID{first.ID, third.ID}, l.ListByOwner(testOwner),
		"Cancelled vaults should remain indexed")
	assert.Equal(t, uint64(3), l.TotalVaults(), "TotalVaults should count terminal vaults")
}

func TestLedgerSnapshotsDoNotAlias(t *testing.T) {
	l, _ := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	// Corrupting a returned snapshot must not reach ledger state.
	snapshot, err := l.GetVault(vault.ID)
	require.NoError(t, err, "Failed to fetch vault")
	for i := range snapshot.HeldShare {
		snapshot.HeldShare[i] = 0
	}

	fresh, err := l.GetVault(vault.ID)
	require.NoError(t, err, "Failed to re-fetch vault")
	assert.Equal(t, []byte("wrapped timelock share"), fresh.HeldShare,
		"Mutating a snapshot must not affect the ledger's copy")
}

func TestLedgerEventLog(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")
	_, err = l.CheckIn(testOwner, vault.ID)
	require.NoError(t, err, "Failed to check in")

	mock.Add(inactivityPeriod)
	_, err = l.Trigger(vault.ID)
	require.NoError(t, err, "Failed to trigger vault")

	mock.Add(gracePeriod)
	_, _, err = l.Claim(testBeneficiary, vault.ID)
	require.NoError(t, err, "Failed to claim vault")

	events := l.ListEvents(0)
	require.Len(t, events, 4, "Every mutation should append one event")

	wantKinds := []interfaces.EventKind{
		interfaces.EventVaultCreated,
		interfaces.EventVaultCheckedIn,
		interfaces.EventVaultTriggered,
		interfaces.EventVaultClaimed,
	}
	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Seq, "Sequence numbers should be gap-free and 1-based")
		assert.Equal(t, wantKinds[i], event.Kind, "Event kinds should follow the mutation order")
		assert.Equal(t, vault.ID, event.VaultID, "Events should reference the mutated vault")
	}

	tail := l.ListEvents(2)
	require.Len(t, tail, 2, "ListEvents should return only events after sinceSeq")
	assert.Equal(t, uint64(3), tail[0].Seq, "Tail should start right after sinceSeq")

	assert.Empty(t, l.ListEvents(4), "ListEvents past the end should return nothing")
	assert.Empty(t, l.ListEvents(99), "ListEvents far past the end should return nothing")

	// A failed mutation must not emit.
	_, err = l.Trigger(vault.ID)
	require.Error(t, err, "Trigger on a claimed vault should fail")
	assert.Len(t, l.ListEvents(0), 4, "Failed mutations should not append events")
}

func TestLedgerSubscribe(t *testing.T) {
	l, _ := newTestLedger(t)

	ch, cancel := l.Subscribe(8)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")
	_, err = l.CheckIn(testOwner, vault.ID)
	require.NoError(t, err, "Failed to check in")

	created := <-ch
	assert.Equal(t, interfaces.EventVaultCreated, created.Kind, "Subscriber should see the create event first")
	checkedIn := <-ch
	assert.Equal(t, interfaces.EventVaultCheckedIn, checkedIn.Kind, "Subscriber should see the check-in event next")

	cancel()
	_, open := <-ch
	assert.False(t, open, "Cancel should close the subscription channel")

	// Cancelling twice is safe.
	cancel()

	// Mutations after cancel must not panic on the closed channel.
	_, err = l.Cancel(testOwner, vault.ID)
	assert.NoError(t, err, "Mutations should proceed after a subscriber cancelled")
}

func TestLedgerSlowSubscriberDropsEvents(t *testing.T) {
	l, _ := newTestLedger(t)

	ch, cancel := l.Subscribe(1)
	defer cancel()

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	// The buffer holds one event; the second fan-out must drop rather than
	// block the ledger.
	done := make(chan error, 1)
	go func() {
		_, err := l.CheckIn(testOwner, vault.ID)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err, "CheckIn should complete despite a full subscriber")
	case <-time.After(5 * time.Second):
		t.Fatal("Ledger blocked on a slow subscriber")
	}

	event := <-ch
	assert.Equal(t, interfaces.EventVaultCreated, event.Kind, "Buffered event should survive")
	assert.Len(t, l.ListEvents(0), 2, "The log itself should keep every event")
}

func TestLedgerStatusView(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	info, err := l.Status(vault.ID)
	require.NoError(t, err, "Failed to compute status")
	assert.Equal(t, interfaces.VaultActive, info.Status, "Status should report active")
	assert.Equal(t, inactivityPeriod, info.TimeUntilTrigger, "Full inactivity period should remain at creation")
	assert.False(t, info.CanTrigger, "Trigger should not be possible yet")

	mock.Add(inactivityPeriod)
	info, err = l.Status(vault.ID)
	require.NoError(t, err, "Failed to compute status")
	assert.True(t, info.CanTrigger, "Trigger should be possible at the deadline")
	assert.Zero(t, info.TimeUntilTrigger, "No wait should remain at the deadline")

	// The advisory view does not mutate: the vault is still active until
	// someone actually triggers it.
	fetched, err := l.GetVault(vault.ID)
	require.NoError(t, err, "Failed to fetch vault")
	assert.Equal(t, interfaces.VaultActive, fetched.Status, "Status reads must not transition the vault")

	_, err = l.Trigger(vault.ID)
	require.NoError(t, err, "Failed to trigger vault")

	info, err = l.Status(vault.ID)
	require.NoError(t, err, "Failed to compute status")
	assert.Equal(t, interfaces.VaultTriggered, info.Status, "Status should report triggered")
	assert.Equal(t, gracePeriod, info.TimeUntilClaim, "Full grace period should remain after triggering")
	assert.False(t, info.CanClaim, "Claim should not be possible yet")
}

func TestLedgerConcurrentMutations(t *testing.T) {
	l, mock := newTestLedger(t)

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	mock.Add(inactivityPeriod)

	// Many concurrent triggers: exactly one may win.
	const attempts = 16
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := l.Trigger(vault.ID)
			results <- err
		}()
	}

	var wins int
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			wins++
		} else {
			assert.True(t, errors.Is(err, interfaces.ErrVaultNotActive),
				"Losing triggers should see a state conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, wins, "Exactly one concurrent trigger should win")

	events := l.ListEvents(0)
	assert.Len(t, events, 2, "Only the winning trigger should emit an event")
}

// steppingClock advances on every read, making any operation that consults
// the clock more than once produce observable drift.
type steppingClock struct {
	*clock.Mock
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.Mock.Now()
	c.Mock.Add(c.step)
	return now
}

func TestLedgerEventTimestampMatchesMutation(t *testing.T) {
	mock := clock.NewMock()
	stepping := &steppingClock{Mock: mock, step: time.Second}
	l, err := New(testLogger(), WithClock(stepping))
	require.NoError(t, err, "Failed to create ledger")

	vault, err := l.Create(testParams())
	require.NoError(t, err, "Failed to create vault")

	events := l.ListEvents(0)
	require.Len(t, events, 1, "Create should emit one event")
	assert.True(t, events[0].Timestamp.Equal(vault.CreatedAt),
		"Created event timestamp should match the vault's creation time")

	mock.Add(inactivityPeriod)
	vault, err = l.Trigger(vault.ID)
	require.NoError(t, err, "Failed to trigger vault")

	events = l.ListEvents(1)
	require.Len(t, events, 1, "Trigger should emit one event")
	assert.True(t, events[0].Timestamp.Equal(vault.TriggerTime),
		"Triggered event timestamp should match the recorded trigger time")
}
