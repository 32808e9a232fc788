package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freelanceguard/backend/internal/models"
)

type stubAccounts struct {
	account *models.Account
	err     error
}

func (s *stubAccounts) GetByID(context.Context, uuid.UUID) (*models.Account, error) {
	return s.account, s.err
}

func newAccountHandler(accounts AccountReader) *AccountHandler {
	return &AccountHandler{
		Accounts: accounts,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestMe(t *testing.T) {
	acc := &models.Account{ID: uuid.New(), Email: "dana@example.com", BalanceCents: 1_500}
	h := newAccountHandler(&stubAccounts{account: acc})

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"balance_cents":1500`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestMeUnknownAccount(t *testing.T) {
	h := newAccountHandler(&stubAccounts{err: pgx.ErrNoRows})

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

// A failing lookup is not the same as a missing account.
func TestMeLookupFailure(t *testing.T) {
	h := newAccountHandler(&stubAccounts{err: io.ErrUnexpectedEOF})

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "not found") {
		t.Errorf("body should not claim the account is missing: %s", rec.Body.String())
	}
}

func TestDepositValidation(t *testing.T) {
	h := newAccountHandler(&stubAccounts{})

	for _, body := range []string{`{"amount_cents":0}`, `{"amount_cents":-50}`, `{not json`} {
		rec := httptest.NewRecorder()
		h.Deposit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/account/deposit", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: got %d, want 400", body, rec.Code)
		}
	}
}
