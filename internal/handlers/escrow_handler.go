package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/freelanceguard/backend/internal/middleware"
	"github.com/freelanceguard/backend/internal/models"
	"github.com/freelanceguard/backend/internal/services"
)

// EscrowRegistry is the subset of the registry consumed by the HTTP surface.
type EscrowRegistry interface {
	CreateEscrow(ctx context.Context, caller, freelancer, arbitrator uuid.UUID, totalCents int64, metadata string) (int64, error)
	CancelEscrow(ctx context.Context, caller uuid.UUID, escrowID int64) error
	AddMilestone(ctx context.Context, caller uuid.UUID, escrowID int64, label string, amountCents int64, deadline *time.Time) (int64, error)
	SubmitMilestone(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64, notes string) error
	ApproveMilestone(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64) error
	RejectMilestone(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64, reason string) error
	RaiseDispute(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64, reason string) (int64, error)
	ResolveDispute(ctx context.Context, caller uuid.UUID, disputeID int64, favorFreelancer bool, resolution string) error
	GetEscrow(ctx context.Context, id int64) (*models.Escrow, error)
	GetMilestone(ctx context.Context, escrowID, milestoneID int64) (*models.Milestone, error)
	ListMilestones(ctx context.Context, escrowID int64) ([]*models.Milestone, error)
	GetDispute(ctx context.Context, id int64) (*models.Dispute, error)
}

// EscrowLedgerReader is satisfied by repository.LedgerRepo.
type EscrowLedgerReader interface {
	ListByEscrowID(ctx context.Context, escrowID int64) ([]*models.LedgerEntry, error)
}

// MetadataValidator is satisfied by services.Validator.
type MetadataValidator interface {
	Validate(kind, doc string) error
}

// EscrowHandler serves the /api/v1/escrows and /api/v1/disputes endpoints.
// Caller identity comes from the bearer-auth middleware; everything else is
// delegated to the registry. Metadata is optional; when nil no schema checks
// run.
type EscrowHandler struct {
	Registry EscrowRegistry
	Ledger   EscrowLedgerReader
	Metadata MetadataValidator
	Logger   *slog.Logger
}

type createEscrowRequest struct {
	FreelancerID string `json:"freelancer_id"`
	ArbitratorID string `json:"arbitrator_id"`
	TotalCents   int64  `json:"total_cents"`
	Metadata     string `json:"metadata"`
}

type addMilestoneRequest struct {
	Label       string     `json:"label"`
	AmountCents int64      `json:"amount_cents"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

type submitMilestoneRequest struct {
	Notes string `json:"notes"`
}

type rejectMilestoneRequest struct {
	Reason string `json:"reason"`
}

type raiseDisputeRequest struct {
	EscrowID    int64  `json:"escrow_id"`
	MilestoneID int64  `json:"milestone_id"`
	Reason      string `json:"reason"`
}

type resolveDisputeRequest struct {
	FavorFreelancer bool   `json:"favor_freelancer"`
	Resolution      string `json:"resolution"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

// CreateEscrow handles POST /api/v1/escrows.
func (h *EscrowHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromCtx(r.Context())
	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		http.Error(w, `{"error":"invalid freelancer_id"}`, http.StatusBadRequest)
		return
	}
	arbitratorID, err := uuid.Parse(req.ArbitratorID)
	if err != nil {
		http.Error(w, `{"error":"invalid arbitrator_id"}`, http.StatusBadRequest)
		return
	}
	if h.Metadata != nil {
		if err := h.Metadata.Validate(services.DocEscrowMetadata, req.Metadata); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	id, err := h.Registry.CreateEscrow(r.Context(), caller, freelancerID, arbitratorID, req.TotalCents, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// GetEscrow handles GET /api/v1/escrows/{id}.
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	esc, err := h.Registry.GetEscrow(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// CancelEscrow handles POST /api/v1/escrows/{id}/cancel.
func (h *EscrowHandler) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Registry.CancelEscrow(r.Context(), middleware.CallerFromCtx(r.Context()), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.EscrowStatusCancelled})
}

// AddMilestone handles POST /api/v1/escrows/{id}/milestones.
func (h *EscrowHandler) AddMilestone(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	id, err := h.Registry.AddMilestone(r.Context(), middleware.CallerFromCtx(r.Context()), escrowID, req.Label, req.AmountCents, req.Deadline)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// ListMilestones handles GET /api/v1/escrows/{id}/milestones.
func (h *EscrowHandler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.Registry.ListMilestones(r.Context(), escrowID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.Milestone{}
	}
	writeJSON(w, http.StatusOK, list)
}

// EscrowLedger handles GET /api/v1/escrows/{id}/ledger: every custody movement
// recorded for the escrow.
func (h *EscrowHandler) EscrowLedger(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.Registry.GetEscrow(r.Context(), escrowID); err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.Ledger.ListByEscrowID(r.Context(), escrowID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetMilestone handles GET /api/v1/escrows/{id}/milestones/{mid}.
func (h *EscrowHandler) GetMilestone(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	milestoneID, ok := pathID(w, r, "mid")
	if !ok {
		return
	}
	ms, err := h.Registry.GetMilestone(r.Context(), escrowID, milestoneID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

// SubmitMilestone handles POST /api/v1/escrows/{id}/milestones/{mid}/submit.
func (h *EscrowHandler) SubmitMilestone(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	milestoneID, ok := pathID(w, r, "mid")
	if !ok {
		return
	}
	var req submitMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Registry.SubmitMilestone(r.Context(), middleware.CallerFromCtx(r.Context()), escrowID, milestoneID, req.Notes); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusSubmitted})
}

// ApproveMilestone handles POST /api/v1/escrows/{id}/milestones/{mid}/approve.
func (h *EscrowHandler) ApproveMilestone(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	milestoneID, ok := pathID(w, r, "mid")
	if !ok {
		return
	}
	if err := h.Registry.ApproveMilestone(r.Context(), middleware.CallerFromCtx(r.Context()), escrowID, milestoneID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusApproved})
}

// RejectMilestone handles POST /api/v1/escrows/{id}/milestones/{mid}/reject.
func (h *EscrowHandler) RejectMilestone(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	milestoneID, ok := pathID(w, r, "mid")
	if !ok {
		return
	}
	var req rejectMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Registry.RejectMilestone(r.Context(), middleware.CallerFromCtx(r.Context()), escrowID, milestoneID, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.MilestoneStatusRejected})
}

// RaiseDispute handles POST /api/v1/disputes.
func (h *EscrowHandler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	var req raiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	id, err := h.Registry.RaiseDispute(r.Context(), middleware.CallerFromCtx(r.Context()), req.EscrowID, req.MilestoneID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// GetDispute handles GET /api/v1/disputes/{id}.
func (h *EscrowHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.Registry.GetDispute(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ResolveDispute handles POST /api/v1/disputes/{id}/resolve.
func (h *EscrowHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Registry.ResolveDispute(r.Context(), middleware.CallerFromCtx(r.Context()), id, req.FavorFreelancer, req.Resolution); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

func (h *EscrowHandler) writeError(w http.ResponseWriter, err error) {
	var opErr *services.OpError
	if errors.As(err, &opErr) {
		writeJSON(w, httpStatus(opErr.Code), map[string]any{"error": opErr.Error(), "code": opErr.Code})
		return
	}
	h.Logger.Error("escrow operation failed", "error", err)
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func httpStatus(code int) int {
	switch code {
	case services.CodeNotAuthorized:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeInvalidAmount:
		return http.StatusBadRequest
	case services.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusConflict
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, `{"error":"invalid `+name+`"}`, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
