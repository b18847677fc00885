package vaultkeeper

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/vault/shamir"

	"github.com/custodia-vault/custodia/cryptoutils"
	"github.com/custodia-vault/custodia/interfaces"
)

const (
	// DefaultTotalShares is the number of shares per split: beneficiary,
	// timelock, backup.
	DefaultTotalShares = 3

	// DefaultThreshold is the reconstruction threshold. 2-of-3 means no
	// single party can recover the secret alone and any two can.
	DefaultThreshold = 2

	// DefaultStorageTimeout bounds content store calls when the caller's
	// context carries no deadline of its own.
	DefaultStorageTimeout = 30 * time.Second
)

// Coordinator orchestrates the end-to-end recovery protocol: it generates
// vault keys, drives the cipher and the share engine, talks to the content
// store and drives ledger transitions in the correct order.
type Coordinator struct {
	ledger         interfaces.VaultLedger
	store          interfaces.StorageBackend
	log            *slog.Logger
	totalShares    int
	threshold      int
	storageTimeout time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithShareScheme overrides the (threshold, total) share parameters.
func WithShareScheme(threshold, total int) CoordinatorOption {
	return func(c *Coordinator) {
		c.threshold = threshold
		c.totalShares = total
	}
}

// WithStorageTimeout overrides the default bound on content store calls.
func WithStorageTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.storageTimeout = d }
}

// NewCoordinator creates a recovery coordinator over the given ledger and
// content store.
func NewCoordinator(ledger interfaces.VaultLedger, store interfaces.StorageBackend, log *slog.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{
		ledger:         ledger,
		store:          store,
		log:            log,
		totalShares:    DefaultTotalShares,
		threshold:      DefaultThreshold,
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.threshold < 2 {
		return nil, errors.New("share threshold must be at least 2")
	}
	if c.totalShares < c.threshold {
		return nil, errors.New("total shares must be at least the threshold")
	}
	return c, nil
}

// CreateRequest carries everything needed to put a secret under protection.
type CreateRequest struct {
	// Secret is the payload to protect, e.g. a seed phrase.
	Secret []byte

	// Owner is the identity that must keep checking in.
	Owner interfaces.Identity

	// Beneficiary is the identity allowed to claim after the timelock fires.
	Beneficiary interfaces.Identity

	// BeneficiaryPubKey is the beneficiary's PEM public key. The timelock
	// share is wrapped under it before the ledger holds it, so a ledger
	// operator cannot read the share ahead of release.
	BeneficiaryPubKey []byte

	// InactivityPeriod is how long the owner may stay silent before anyone
	// can trigger recovery.
	InactivityPeriod time.Duration

	// GracePeriod is the window after triggering during which the owner can
	// still check in and abort the recovery.
	GracePeriod time.Duration
}

// CreateVault runs the creation sequence: generate a fresh key, seal the
// secret, store the ciphertext, split the key 2-of-3, wrap the timelock
// share for the beneficiary, and record the vault in the ledger.
//
// Any step's failure aborts the whole operation without a ledger record. If
// the ciphertext was already stored when a later step fails, the orphaned
// blob is harmless: nothing references it and no key material accompanies it.
//
// The returned shares leave the system's custody immediately: the caller
// delivers BeneficiaryShare out of band and secures BackupShare offline.
func (c *Coordinator) CreateVault(ctx context.Context, req CreateRequest) (interfaces.VaultID, interfaces.SecretShares, error) {
	if len(req.Secret) == 0 {
		return 0, interfaces.SecretShares{}, fmt.Errorf("%w: secret must not be empty", interfaces.ErrInvalidParams)
	}
	if len(req.BeneficiaryPubKey) == 0 {
		return 0, interfaces.SecretShares{}, fmt.Errorf("%w: beneficiary public key must be provided", interfaces.ErrInvalidParams)
	}

	key, err := cryptoutils.GenerateVaultKey()
	if err != nil {
		return 0, interfaces.SecretShares{}, err
	}
	defer cryptoutils.WipeBytes(key)

	sealed, err := cryptoutils.SealPayload(key, req.Secret)
	if err != nil {
		return 0, interfaces.SecretShares{}, fmt.Errorf("failed to seal payload: %w", err)
	}

	storeCtx, cancel := c.boundContext(ctx)
	defer cancel()
	storageRef, err := c.store.Store(storeCtx, sealed, interfaces.PayloadType)
	if err != nil {
		return 0, interfaces.SecretShares{}, fmt.Errorf("failed to store sealed payload: %w", err)
	}

	shares, err := shamir.Split(key, c.totalShares, c.threshold)
	if err != nil {
		return 0, interfaces.SecretShares{}, fmt.Errorf("failed to split vault key: %w", err)
	}

	secretShares := interfaces.SecretShares{
		BeneficiaryShare: shares[0],
		TimelockShare:    shares[1],
		BackupShare:      shares[2],
	}

	wrappedTimelock, err := cryptoutils.WrapShare(req.BeneficiaryPubKey, secretShares.TimelockShare)
	if err != nil {
		return 0, interfaces.SecretShares{}, fmt.Errorf("failed to wrap timelock share: %w", err)
	}

	vault, err := c.ledger.Create(interfaces.CreateParams{
		Owner:            req.Owner,
		Beneficiary:      req.Beneficiary,
		StorageRef:       storageRef,
		HeldShare:        wrappedTimelock,
		InactivityPeriod: req.InactivityPeriod,
		GracePeriod:      req.GracePeriod,
	})
	if err != nil {
		return 0, interfaces.SecretShares{}, err
	}

	c.log.Info("Vault provisioned",
		slog.Uint64("vault_id", uint64(vault.ID)),
		slog.String("storage_ref", storageRef.String()),
		slog.Int("shares", c.totalShares),
		slog.Int("threshold", c.threshold))

	return vault.ID, secretShares, nil
}

// ClaimInheritance runs the recovery sequence for the beneficiary: claim the
// vault (which enforces trigger plus grace), unwrap the released timelock
// share with the beneficiary's private key, combine it with the caller's own
// retained share, fetch the ciphertext and open it.
//
// A combine or decryption failure surfaces as ErrInsufficientShares or
// ErrIntegrity respectively, never as a storage "not found".
func (c *Coordinator) ClaimInheritance(ctx context.Context, id interfaces.VaultID, beneficiary interfaces.Identity, beneficiaryShare []byte, beneficiaryKey *ecdsa.PrivateKey) ([]byte, error) {
	if len(beneficiaryShare) == 0 {
		return nil, fmt.Errorf("%w: beneficiary share must be provided", interfaces.ErrInsufficientShares)
	}
	if beneficiaryKey == nil {
		return nil, errors.New("beneficiary private key must be provided")
	}

	storageRef, wrappedHeld, err := c.ledger.Claim(beneficiary, id)
	if err != nil {
		return nil, err
	}

	heldShare, err := cryptoutils.UnwrapShare(beneficiaryKey, wrappedHeld)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap released timelock share: %w", err)
	}

	return c.recover(ctx, storageRef, [][]byte{beneficiaryShare, heldShare})
}

// RecoverSecret reconstructs a secret from any threshold-many of the original
// shares plus the storage reference. This is the degenerate recovery path:
// an owner holding the backup share and the beneficiary's share can decrypt
// without the ledger ever releasing anything.
func (c *Coordinator) RecoverSecret(ctx context.Context, storageRef interfaces.ContentID, shares [][]byte) ([]byte, error) {
	return c.recover(ctx, storageRef, shares)
}

func (c *Coordinator) recover(ctx context.Context, storageRef interfaces.ContentID, shares [][]byte) ([]byte, error) {
	if len(shares) < c.threshold {
		return nil, fmt.Errorf("%w: got %d shares, need %d", interfaces.ErrInsufficientShares, len(shares), c.threshold)
	}

	key, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInsufficientShares, err)
	}
	defer cryptoutils.WipeBytes(key)

	fetchCtx, cancel := c.boundContext(ctx)
	defer cancel()
	sealed, err := c.store.Fetch(fetchCtx, storageRef, interfaces.PayloadType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sealed payload: %w", err)
	}

	secret, err := cryptoutils.OpenPayload(key, sealed)
	if err != nil {
		return nil, err
	}

	c.log.Info("Secret recovered", slog.String("storage_ref", storageRef.String()))
	return secret, nil
}

// boundContext adds the coordinator's storage timeout when the caller did not
// set a deadline. Exceeding it surfaces as ErrBackendUnavailable from the
// storage layer, a retryable failure distinct from "not found".
func (c *Coordinator) boundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.storageTimeout)
}
