package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freelanceguard/backend/internal/models"
)

const escrowColumns = `id, client_id, freelancer_id, arbitrator_id, total_cents, paid_cents, allocated_cents, milestone_count, status, metadata, created_at, updated_at`

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// NextID allocates the next escrow id from the nonce row. Rolls back with the
// transaction, so a failed create never consumes an id.
func (r *EscrowRepo) NextID(ctx context.Context, tx pgx.Tx) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		UPDATE nonces SET value = value + 1 WHERE name = 'escrow' RETURNING value
	`).Scan(&id)
	return id, err
}

func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, e *models.Escrow) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrows (id, client_id, freelancer_id, arbitrator_id, total_cents, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, e.ID, e.ClientID, e.FreelancerID, e.ArbitratorID, e.TotalCents, e.Status, e.Metadata).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id int64) (*models.Escrow, error) {
	return scanEscrow(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the escrow row. Call within a transaction.
func (r *EscrowRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Escrow, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrows WHERE id = $1 FOR UPDATE
	`, id))
}

// ReserveMilestone bumps the escrow's milestone counter and allocation in one
// statement and returns the new milestone id (dense, starting at 1).
func (r *EscrowRepo) ReserveMilestone(ctx context.Context, tx pgx.Tx, escrowID, amountCents int64) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		UPDATE escrows SET milestone_count = milestone_count + 1, allocated_cents = allocated_cents + $2, updated_at = now()
		WHERE id = $1
		RETURNING milestone_count
	`, escrowID, amountCents).Scan(&id)
	return id, err
}

// RecordPayment applies a milestone payout to the aggregate: paid increases and
// the status lands in the same statement, so there is no observable moment
// where the escrow is fully paid but still active.
func (r *EscrowRepo) RecordPayment(ctx context.Context, tx pgx.Tx, id, amountCents int64, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrows SET paid_cents = paid_cents + $2, status = $3, updated_at = now() WHERE id = $1
	`, id, amountCents, status)
	return err
}

func (r *EscrowRepo) SetStatus(ctx context.Context, tx pgx.Tx, id int64, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrows SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

func scanEscrow(row pgx.Row) (*models.Escrow, error) {
	var e models.Escrow
	err := row.Scan(&e.ID, &e.ClientID, &e.FreelancerID, &e.ArbitratorID, &e.TotalCents, &e.PaidCents,
		&e.AllocatedCents, &e.MilestoneCount, &e.Status, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
