package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"

	"github.com/custodia-vault/custodia/api"
	"github.com/custodia-vault/custodia/interfaces"
	"github.com/custodia-vault/custodia/vaultkeeper"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

var (
	vaultsCreatedCounter   = metrics.NewCounter("custodia_vaults_created_total")
	vaultsCheckedInCounter = metrics.NewCounter("custodia_vaults_checked_in_total")
	vaultsTriggeredCounter = metrics.NewCounter("custodia_vaults_triggered_total")
	vaultsClaimedCounter   = metrics.NewCounter("custodia_vaults_claimed_total")
	vaultsCancelledCounter = metrics.NewCounter("custodia_vaults_cancelled_total")
	requestErrorsCounter   = metrics.NewCounter("custodia_request_errors_total")
)

// Handler processes HTTP requests for the vault service. Mutations go to the
// ledger (and, for creation, through the recovery coordinator); reads come
// from ledger snapshots and the status oracle.
type Handler struct {
	ledger      interfaces.VaultLedger
	coordinator *vaultkeeper.Coordinator
	store       interfaces.StorageBackend
	log         *slog.Logger
}

// NewHandler creates an HTTP request handler.
func NewHandler(ledger interfaces.VaultLedger, coordinator *vaultkeeper.Coordinator, store interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		ledger:      ledger,
		coordinator: coordinator,
		store:       store,
		log:         log,
	}
}

// callerIdentity parses the identity header. Every endpoint that acts on
// behalf of a caller requires it.
func callerIdentity(r *http.Request) (interfaces.Identity, error) {
	raw := r.Header.Get(api.IdentityHeader)
	if raw == "" {
		return interfaces.Identity{}, errors.New("missing " + api.IdentityHeader + " header")
	}
	return interfaces.NewIdentityFromHex(raw)
}

func vaultIDParam(r *http.Request) (interfaces.VaultID, error) {
	raw := chi.URLParam(r, "vault_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid vault id")
	}
	return interfaces.VaultID(id), nil
}

// HandleCreateVault processes POST /api/vaults. The caller becomes the
// owner; the response carries all three shares, which the service forgets
// the moment they are written out.
func (h *Handler) HandleCreateVault(w http.ResponseWriter, r *http.Request) {
	owner, err := callerIdentity(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req api.CreateVaultRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	beneficiary, err := interfaces.NewIdentityFromHex(req.Beneficiary)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	vaultID, shares, err := h.coordinator.CreateVault(r.Context(), vaultkeeper.CreateRequest{
		Secret:            req.Secret,
		Owner:             owner,
		Beneficiary:       beneficiary,
		BeneficiaryPubKey: []byte(req.BeneficiaryPubKey),
		InactivityPeriod:  time.Duration(req.InactivityPeriodSecs) * time.Second,
		GracePeriod:       time.Duration(req.GracePeriodSecs) * time.Second,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	vault, err := h.ledger.GetVault(vaultID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	vaultsCreatedCounter.Inc()
	h.writeJSON(w, api.CreateVaultResponse{
		VaultID:          uint64(vaultID),
		BeneficiaryShare: shares.BeneficiaryShare,
		TimelockShare:    shares.TimelockShare,
		BackupShare:      shares.BackupShare,
		StorageRef:       vault.StorageRef.String(),
	})
}

// HandleCheckIn processes POST /api/vaults/{vault_id}/checkin.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	caller, err := callerIdentity(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := vaultIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	vault, err := h.ledger.CheckIn(caller, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	vaultsCheckedInCounter.Inc()
	h.writeJSON(w, api.NewVaultResponse(vault))
}

// HandleTrigger processes POST /api/vaults/{vault_id}/trigger. No identity
// is required: anyone may trigger; the time guard is the protection.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	vault, err := h.ledger.Trigger(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	vaultsTriggeredCounter.Inc()
	h.writeJSON(w, api.NewVaultResponse(vault))
}

// HandleClaim processes POST /api/vaults/{vault_id}/claim, releasing the
// storage reference and the wrapped timelock share to the beneficiary.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	caller, err := callerIdentity(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := vaultIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	storageRef, heldShare, err := h.ledger.Claim(caller, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	vaultsClaimedCounter.Inc()
	h.writeJSON(w, api.ClaimResponse{
		StorageRef: storageRef.String(),
		HeldShare:  heldShare,
	})
}

// HandleCancel processes POST /api/vaults/{vault_id}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	caller, err := callerIdentity(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := vaultIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	vault, err := h.ledger.Cancel(caller, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	vaultsCancelledCounter.Inc()
	h.writeJSON(w, api.NewVaultResponse(vault))
}

// HandleGetVault processes GET /api/vaults/{vault_id}.
func (h *Handler) HandleGetVault(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	vault, err := h.ledger.GetVault(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, api.NewVaultResponse(vault))
}

// HandleGetStatus processes GET /api/vaults/{vault_id}/status.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := vaultIDParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	info, err := h.ledger.Status(id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, api.NewStatusResponse(info))
}

// HandleListVaults processes GET /api/vaults?owner=&beneficiary=.
func (h *Handler) HandleListVaults(w http.ResponseWriter, r *http.Request) {
	ownerParam := r.URL.Query().Get("owner")
	beneficiaryParam := r.URL.Query().Get("beneficiary")

	var ids []interfaces.VaultID
	switch {
	case ownerParam != "":
		owner, err := interfaces.NewIdentityFromHex(ownerParam)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		ids = h.ledger.ListByOwner(owner)
	case beneficiaryParam != "":
		beneficiary, err := interfaces.NewIdentityFromHex(beneficiaryParam)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		ids = h.ledger.ListByBeneficiary(beneficiary)
	default:
		h.writeError(w, http.StatusBadRequest, errors.New("owner or beneficiary query parameter required"))
		return
	}

	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint64(id))
	}
	h.writeJSON(w, api.VaultListResponse{VaultIDs: out})
}

// HandleVaultCount processes GET /api/vaults/count.
func (h *Handler) HandleVaultCount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, api.VaultCountResponse{Total: h.ledger.TotalVaults()})
}

// HandleEvents processes GET /api/events?since=N.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, errors.New("invalid since parameter"))
			return
		}
		since = parsed
	}

	events := h.ledger.ListEvents(since)
	if events == nil {
		events = []interfaces.Event{}
	}
	h.writeJSON(w, api.EventsResponse{Events: events})
}

// HandlePayload processes GET /api/payloads/{storage_ref}, serving sealed
// ciphertext from the content store. The payload is safe to serve: it is
// useless without a reconstructed vault key.
func (h *Handler) HandlePayload(w http.ResponseWriter, r *http.Request) {
	ref, err := interfaces.NewContentIDFromHex(chi.URLParam(r, "storage_ref"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := h.store.Fetch(r.Context(), ref, interfaces.PayloadType)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	requestErrorsCounter.Inc()

	resp := api.ErrorResponse{Error: err.Error()}
	var guardErr *interfaces.TimeGuardError
	if errors.As(err, &guardErr) {
		secs := int64(guardErr.Remaining.Seconds())
		resp.RemainingSecs = &secs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// writeLedgerError maps the error taxonomy onto HTTP status codes:
// validation 400, authorization 403, temporal guards 425, state conflicts
// 409, unknown records 404, storage unavailability 503.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, interfaces.ErrVaultNotFound),
		errors.Is(err, interfaces.ErrContentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrNotOwner),
		errors.Is(err, interfaces.ErrNotBeneficiary):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrInactivityNotElapsed),
		errors.Is(err, interfaces.ErrGraceNotElapsed):
		status = http.StatusTooEarly
	case errors.Is(err, interfaces.ErrVaultNotActive),
		errors.Is(err, interfaces.ErrVaultNotTriggered),
		errors.Is(err, interfaces.ErrVaultTerminal):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrInvalidParams):
		status = http.StatusBadRequest
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	h.writeError(w, status, err)
}
