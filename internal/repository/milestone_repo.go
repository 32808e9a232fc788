package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freelanceguard/backend/internal/models"
)

const milestoneColumns = `escrow_id, id, label, amount_cents, status, deadline, submission_notes, rejection_reason, submitted_at, created_at, updated_at`

type MilestoneRepo struct {
	pool *pgxpool.Pool
}

func NewMilestoneRepo(pool *pgxpool.Pool) *MilestoneRepo {
	return &MilestoneRepo{pool: pool}
}

func (r *MilestoneRepo) Create(ctx context.Context, tx pgx.Tx, m *models.Milestone) error {
	return tx.QueryRow(ctx, `
		INSERT INTO milestones (escrow_id, id, label, amount_cents, status, deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, m.EscrowID, m.ID, m.Label, m.AmountCents, m.Status, m.Deadline).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *MilestoneRepo) Get(ctx context.Context, escrowID, id int64) (*models.Milestone, error) {
	return scanMilestone(r.pool.QueryRow(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE escrow_id = $1 AND id = $2
	`, escrowID, id))
}

// GetForUpdate locks the milestone row. Call within a transaction.
func (r *MilestoneRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, escrowID, id int64) (*models.Milestone, error) {
	return scanMilestone(tx.QueryRow(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE escrow_id = $1 AND id = $2 FOR UPDATE
	`, escrowID, id))
}

func (r *MilestoneRepo) SetSubmitted(ctx context.Context, tx pgx.Tx, escrowID, id int64, notes string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE milestones SET status = $3, submission_notes = $4, submitted_at = $5, updated_at = now()
		WHERE escrow_id = $1 AND id = $2
	`, escrowID, id, models.MilestoneStatusSubmitted, notes, at)
	return err
}

func (r *MilestoneRepo) SetApproved(ctx context.Context, tx pgx.Tx, escrowID, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE milestones SET status = $3, updated_at = now() WHERE escrow_id = $1 AND id = $2
	`, escrowID, id, models.MilestoneStatusApproved)
	return err
}

func (r *MilestoneRepo) SetRejected(ctx context.Context, tx pgx.Tx, escrowID, id int64, reason string) error {
	_, err := tx.Exec(ctx, `
		UPDATE milestones SET status = $3, rejection_reason = $4, updated_at = now()
		WHERE escrow_id = $1 AND id = $2
	`, escrowID, id, models.MilestoneStatusRejected, reason)
	return err
}

// ListByEscrowID returns the escrow's milestones in id order.
func (r *MilestoneRepo) ListByEscrowID(ctx context.Context, escrowID int64) ([]*models.Milestone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE escrow_id = $1 ORDER BY id
	`, escrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func scanMilestone(row pgx.Row) (*models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(&m.EscrowID, &m.ID, &m.Label, &m.AmountCents, &m.Status, &m.Deadline,
		&m.SubmissionNotes, &m.RejectionReason, &m.SubmittedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
