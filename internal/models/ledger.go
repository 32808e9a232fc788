package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry_type enums. Every balance movement produces exactly one entry.
const (
	LedgerEntryDeposit         = "deposit"
	LedgerEntryEscrowLock      = "escrow_lock"
	LedgerEntryMilestonePayout = "milestone_payout"
	LedgerEntryEscrowRefund    = "escrow_refund"
)

type LedgerEntry struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"account_id"`
	EscrowID          *int64    `json:"escrow_id,omitempty"`
	MilestoneID       *int64    `json:"milestone_id,omitempty"`
	EntryType         string    `json:"entry_type"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents *int64    `json:"balance_after_cents,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
