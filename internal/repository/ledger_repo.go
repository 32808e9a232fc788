package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freelanceguard/backend/internal/models"
)

const ledgerColumns = `id, account_id, escrow_id, milestone_id, entry_type, amount_cents, balance_after_cents, created_at`

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// CreateTx inserts a ledger entry inside the given transaction.
func (r *LedgerRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, escrow_id, milestone_id, entry_type, amount_cents, balance_after_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.AccountID, e.EscrowID, e.MilestoneID, e.EntryType, e.AmountCents, e.BalanceAfterCents).Scan(&e.CreatedAt)
}

func (r *LedgerRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	return r.list(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
}

func (r *LedgerRepo) ListByEscrowID(ctx context.Context, escrowID int64) ([]*models.LedgerEntry, error) {
	return r.list(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries WHERE escrow_id = $1 ORDER BY created_at DESC
	`, escrowID)
}

func (r *LedgerRepo) list(ctx context.Context, query string, arg any) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.EscrowID, &e.MilestoneID, &e.EntryType,
		&e.AmountCents, &e.BalanceAfterCents, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
