package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freelanceguard/backend/internal/models"
)

// CustodyAccountRepo is the minimal account repository interface for custody moves.
// Debit returns pgx.ErrNoRows when the balance is inadequate (or the account is
// missing); both are surfaced to callers as ErrInsufficientFunds.
type CustodyAccountRepo interface {
	Debit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error)
	Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amountCents int64) (newBalance int64, err error)
}

// CustodyEntryRepo is the minimal ledger entry interface for custody moves.
type CustodyEntryRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// CustodyService moves value between spendable account balances and escrow
// custody. Every method runs inside the caller's transaction and records one
// ledger entry per balance change, so a rolled-back operation leaves no entry.
type CustodyService struct {
	Accounts CustodyAccountRepo
	Entries  CustodyEntryRepo
}

func NewCustodyService(accounts CustodyAccountRepo, entries CustodyEntryRepo) *CustodyService {
	return &CustodyService{Accounts: accounts, Entries: entries}
}

// Lock moves amountCents out of the client's spendable balance into the named
// escrow's custody at creation time.
func (s *CustodyService) Lock(ctx context.Context, tx pgx.Tx, from uuid.UUID, escrowID int64, amountCents int64) error {
	newBalance, err := s.Accounts.Debit(ctx, tx, from, amountCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientFunds
		}
		return err
	}
	return s.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         from,
		EscrowID:          &escrowID,
		EntryType:         models.LedgerEntryEscrowLock,
		AmountCents:       amountCents,
		BalanceAfterCents: &newBalance,
	})
}

// Release pays amountCents from escrow custody to the freelancer for one
// milestone. remainingCents is the custody held before the call; releasing more
// than that indicates a registry bug and fails with ErrLedgerCorruption.
func (s *CustodyService) Release(ctx context.Context, tx pgx.Tx, escrowID, milestoneID int64, to uuid.UUID, amountCents, remainingCents int64) error {
	if amountCents > remainingCents {
		return ErrLedgerCorruption
	}
	newBalance, err := s.Accounts.Credit(ctx, tx, to, amountCents)
	if err != nil {
		return err
	}
	return s.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         to,
		EscrowID:          &escrowID,
		MilestoneID:       &milestoneID,
		EntryType:         models.LedgerEntryMilestonePayout,
		AmountCents:       amountCents,
		BalanceAfterCents: &newBalance,
	})
}

// Refund returns amountCents of escrow custody to the original client; used by
// cancellation. A zero refund (everything already paid out) moves nothing.
func (s *CustodyService) Refund(ctx context.Context, tx pgx.Tx, escrowID int64, to uuid.UUID, amountCents, remainingCents int64) error {
	if amountCents > remainingCents {
		return ErrLedgerCorruption
	}
	if amountCents == 0 {
		return nil
	}
	newBalance, err := s.Accounts.Credit(ctx, tx, to, amountCents)
	if err != nil {
		return err
	}
	return s.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         to,
		EscrowID:          &escrowID,
		EntryType:         models.LedgerEntryEscrowRefund,
		AmountCents:       amountCents,
		BalanceAfterCents: &newBalance,
	})
}

// Deposit credits spendable balance from the external payment boundary.
func (s *CustodyService) Deposit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amountCents int64) error {
	newBalance, err := s.Accounts.Credit(ctx, tx, accountID, amountCents)
	if err != nil {
		return err
	}
	return s.Entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         accountID,
		EntryType:         models.LedgerEntryDeposit,
		AmountCents:       amountCents,
		BalanceAfterCents: &newBalance,
	})
}
