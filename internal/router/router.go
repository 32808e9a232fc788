package router

import (
	"net/http"

	"github.com/freelanceguard/backend/internal/auth"
	"github.com/freelanceguard/backend/internal/handlers"
	"github.com/freelanceguard/backend/internal/middleware"
)

// New returns an http.Handler that serves the API under /api/v1. Auth routes
// are open; everything else sits behind bearer auth.
func New(authHandler *auth.Handler, escrowHandler *handlers.EscrowHandler, accountHandler *handlers.AccountHandler, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	authed := http.NewServeMux()
	authed.HandleFunc("GET "+base+"/account/me", accountHandler.Me)
	authed.HandleFunc("POST "+base+"/account/deposit", accountHandler.Deposit)
	authed.HandleFunc("GET "+base+"/account/ledger", accountHandler.LedgerHistory)

	authed.HandleFunc("POST "+base+"/escrows", escrowHandler.CreateEscrow)
	authed.HandleFunc("GET "+base+"/escrows/{id}", escrowHandler.GetEscrow)
	authed.HandleFunc("POST "+base+"/escrows/{id}/cancel", escrowHandler.CancelEscrow)
	authed.HandleFunc("POST "+base+"/escrows/{id}/milestones", escrowHandler.AddMilestone)
	authed.HandleFunc("GET "+base+"/escrows/{id}/milestones", escrowHandler.ListMilestones)
	authed.HandleFunc("GET "+base+"/escrows/{id}/ledger", escrowHandler.EscrowLedger)
	authed.HandleFunc("GET "+base+"/escrows/{id}/milestones/{mid}", escrowHandler.GetMilestone)
	authed.HandleFunc("POST "+base+"/escrows/{id}/milestones/{mid}/submit", escrowHandler.SubmitMilestone)
	authed.HandleFunc("POST "+base+"/escrows/{id}/milestones/{mid}/approve", escrowHandler.ApproveMilestone)
	authed.HandleFunc("POST "+base+"/escrows/{id}/milestones/{mid}/reject", escrowHandler.RejectMilestone)

	authed.HandleFunc("POST "+base+"/disputes", escrowHandler.RaiseDispute)
	authed.HandleFunc("GET "+base+"/disputes/{id}", escrowHandler.GetDispute)
	authed.HandleFunc("POST "+base+"/disputes/{id}/resolve", escrowHandler.ResolveDispute)

	mux.Handle(base+"/", middleware.BearerAuth(validator)(authed))

	return mux
}
