package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freelanceguard/backend/internal/middleware"
	"github.com/freelanceguard/backend/internal/models"
)

type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type LedgerReader interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

// Depositor is satisfied by services.CustodyService.
type Depositor interface {
	Deposit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amountCents int64) error
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountHandler serves the authenticated account surface: profile, deposits
// and the account's ledger history.
type AccountHandler struct {
	Pool     TxBeginner
	Accounts AccountReader
	Ledger   LedgerReader
	Custody  Depositor
	Logger   *slog.Logger
}

type depositRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// Me handles GET /api/v1/account/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Accounts.GetByID(r.Context(), middleware.CallerFromCtx(r.Context()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("account lookup failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Deposit handles POST /api/v1/account/deposit. Real money enters the system
// only here; escrow operations just move what deposits brought in.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, `{"error":"amount_cents must be positive"}`, http.StatusBadRequest)
		return
	}
	caller := middleware.CallerFromCtx(r.Context())

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("deposit begin failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.Custody.Deposit(r.Context(), tx, caller, req.AmountCents); err != nil {
		h.Logger.Error("deposit failed", "account_id", caller, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("deposit commit failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	acc, err := h.Accounts.GetByID(r.Context(), caller)
	if err != nil {
		h.Logger.Error("account lookup failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// LedgerHistory handles GET /api/v1/account/ledger.
func (h *AccountHandler) LedgerHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.ListByAccountID(r.Context(), middleware.CallerFromCtx(r.Context()))
	if err != nil {
		h.Logger.Error("ledger list failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
