package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freelanceguard/backend/internal/models"
)

const disputeColumns = `id, escrow_id, milestone_id, raised_by, reason, resolved, resolution, resolved_at, created_at`

type DisputeRepo struct {
	pool *pgxpool.Pool
}

func NewDisputeRepo(pool *pgxpool.Pool) *DisputeRepo {
	return &DisputeRepo{pool: pool}
}

// NextID allocates the next dispute id from the nonce row.
func (r *DisputeRepo) NextID(ctx context.Context, tx pgx.Tx) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		UPDATE nonces SET value = value + 1 WHERE name = 'dispute' RETURNING value
	`).Scan(&id)
	return id, err
}

func (r *DisputeRepo) Create(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	return tx.QueryRow(ctx, `
		INSERT INTO disputes (id, escrow_id, milestone_id, raised_by, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.EscrowID, d.MilestoneID, d.RaisedBy, d.Reason).Scan(&d.CreatedAt)
}

func (r *DisputeRepo) GetByID(ctx context.Context, id int64) (*models.Dispute, error) {
	return scanDispute(r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE id = $1
	`, id))
}

// GetByIDForUpdate locks the dispute row. Call within a transaction.
func (r *DisputeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Dispute, error) {
	return scanDispute(tx.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE
	`, id))
}

func (r *DisputeRepo) MarkResolved(ctx context.Context, tx pgx.Tx, id int64, resolution string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes SET resolved = true, resolution = $2, resolved_at = $3 WHERE id = $1
	`, id, resolution, at)
	return err
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.EscrowID, &d.MilestoneID, &d.RaisedBy, &d.Reason,
		&d.Resolved, &d.Resolution, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
