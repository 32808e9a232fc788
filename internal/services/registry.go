package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/freelanceguard/backend/internal/models"
	"github.com/freelanceguard/backend/internal/notify"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RegistryEscrowRepo is the escrow data access required by the registry.
// ForUpdate variants lock the row; Get* return pgx.ErrNoRows for missing ids.
type RegistryEscrowRepo interface {
	NextID(ctx context.Context, tx pgx.Tx) (int64, error)
	Create(ctx context.Context, tx pgx.Tx, e *models.Escrow) error
	GetByID(ctx context.Context, id int64) (*models.Escrow, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Escrow, error)
	ReserveMilestone(ctx context.Context, tx pgx.Tx, escrowID, amountCents int64) (milestoneID int64, err error)
	RecordPayment(ctx context.Context, tx pgx.Tx, id, amountCents int64, status string) error
	SetStatus(ctx context.Context, tx pgx.Tx, id int64, status string) error
}

// RegistryMilestoneRepo is the milestone data access required by the registry.
type RegistryMilestoneRepo interface {
	Create(ctx context.Context, tx pgx.Tx, m *models.Milestone) error
	Get(ctx context.Context, escrowID, id int64) (*models.Milestone, error)
	ListByEscrowID(ctx context.Context, escrowID int64) ([]*models.Milestone, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, escrowID, id int64) (*models.Milestone, error)
	SetSubmitted(ctx context.Context, tx pgx.Tx, escrowID, id int64, notes string, at time.Time) error
	SetApproved(ctx context.Context, tx pgx.Tx, escrowID, id int64) error
	SetRejected(ctx context.Context, tx pgx.Tx, escrowID, id int64, reason string) error
}

// RegistryDisputeRepo is the dispute data access required by the registry.
type RegistryDisputeRepo interface {
	NextID(ctx context.Context, tx pgx.Tx) (int64, error)
	Create(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id int64) (*models.Dispute, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Dispute, error)
	MarkResolved(ctx context.Context, tx pgx.Tx, id int64, resolution string, at time.Time) error
}

// CustodyLedger is the fund movement interface consumed by the registry.
type CustodyLedger interface {
	Lock(ctx context.Context, tx pgx.Tx, from uuid.UUID, escrowID int64, amountCents int64) error
	Release(ctx context.Context, tx pgx.Tx, escrowID, milestoneID int64, to uuid.UUID, amountCents, remainingCents int64) error
	Refund(ctx context.Context, tx pgx.Tx, escrowID int64, to uuid.UUID, amountCents, remainingCents int64) error
}

// EnqueueEventTxFunc enqueues a lifecycle event within the given transaction.
// Typically a closure over river.Client.InsertTx; nil disables events.
type EnqueueEventTxFunc func(ctx context.Context, tx pgx.Tx, args notify.EscrowEventArgs) error

// Registry is the escrow aggregate root. Every public operation is one
// transaction: validation, status changes, custody movement, and event
// enqueueing commit or roll back together.
type Registry struct {
	pool       TxBeginner
	escrows    RegistryEscrowRepo
	milestones RegistryMilestoneRepo
	disputes   RegistryDisputeRepo
	custody    CustodyLedger
	enqueue    EnqueueEventTxFunc
	logger     *slog.Logger
}

func NewRegistry(
	pool TxBeginner,
	escrows RegistryEscrowRepo,
	milestones RegistryMilestoneRepo,
	disputes RegistryDisputeRepo,
	custody CustodyLedger,
	enqueue EnqueueEventTxFunc,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		pool:       pool,
		escrows:    escrows,
		milestones: milestones,
		disputes:   disputes,
		custody:    custody,
		enqueue:    enqueue,
		logger:     logger,
	}
}

// CreateEscrow locks totalCents from the caller's balance and registers a new
// active escrow with the caller as client. The amount check runs before any
// state is touched, so an invalid amount consumes no id.
func (r *Registry) CreateEscrow(ctx context.Context, caller, freelancer, arbitrator uuid.UUID, totalCents int64, metadata string) (int64, error) {
	if totalCents <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := r.escrows.NextID(ctx, tx)
	if err != nil {
		return 0, err
	}
	// The escrow row must exist before the lock writes its ledger entry, which
	// references it.
	if err := r.escrows.Create(ctx, tx, &models.Escrow{
		ID:           id,
		ClientID:     caller,
		FreelancerID: freelancer,
		ArbitratorID: arbitrator,
		TotalCents:   totalCents,
		Status:       models.EscrowStatusActive,
		Metadata:     metadata,
	}); err != nil {
		return 0, err
	}
	if err := r.custody.Lock(ctx, tx, caller, id, totalCents); err != nil {
		return 0, err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventEscrowCreated,
		EscrowID:    id,
		AmountCents: totalCents,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// CancelEscrow refunds the unpaid remainder to the client and marks the escrow
// cancelled. A second cancel fails with ErrInvalidState.
func (r *Registry) CancelEscrow(ctx context.Context, caller uuid.UUID, escrowID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := r.escrows.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	if err := requireCaller(caller, esc.ClientID); err != nil {
		return err
	}
	if esc.Status != models.EscrowStatusActive {
		return ErrInvalidState
	}

	refund := esc.Remaining()
	if err := r.custody.Refund(ctx, tx, escrowID, esc.ClientID, refund, refund); err != nil {
		return r.loudIfCorrupt(err, escrowID)
	}
	if err := r.escrows.SetStatus(ctx, tx, escrowID, models.EscrowStatusCancelled); err != nil {
		return err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventEscrowCancelled,
		EscrowID:    escrowID,
		AmountCents: refund,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetEscrow returns the escrow or ErrNotFound.
func (r *Registry) GetEscrow(ctx context.Context, id int64) (*models.Escrow, error) {
	esc, err := r.escrows.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return esc, nil
}

// GetMilestone returns the milestone or ErrNotFound.
func (r *Registry) GetMilestone(ctx context.Context, escrowID, milestoneID int64) (*models.Milestone, error) {
	ms, err := r.milestones.Get(ctx, escrowID, milestoneID)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return ms, nil
}

// GetDispute returns the dispute or ErrNotFound.
func (r *Registry) GetDispute(ctx context.Context, id int64) (*models.Dispute, error) {
	d, err := r.disputes.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return d, nil
}

// ListMilestones returns the escrow's milestones in id order, or ErrNotFound
// for an unknown escrow.
func (r *Registry) ListMilestones(ctx context.Context, escrowID int64) ([]*models.Milestone, error) {
	if _, err := r.escrows.GetByID(ctx, escrowID); err != nil {
		return nil, notFoundIfNoRows(err)
	}
	return r.milestones.ListByEscrowID(ctx, escrowID)
}

// GetMilestoneCount returns how many milestones the escrow owns.
func (r *Registry) GetMilestoneCount(ctx context.Context, escrowID int64) (int64, error) {
	esc, err := r.escrows.GetByID(ctx, escrowID)
	if err != nil {
		return 0, notFoundIfNoRows(err)
	}
	return esc.MilestoneCount, nil
}

// activeEscrowForUpdate loads and locks the escrow, enforcing the uniform
// "must exist and be active" rule for mutating milestone/dispute operations.
func (r *Registry) activeEscrowForUpdate(ctx context.Context, tx pgx.Tx, escrowID int64) (*models.Escrow, error) {
	esc, err := r.escrows.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return nil, notFoundIfNoRows(err)
	}
	if esc.Status != models.EscrowStatusActive {
		return nil, ErrInvalidState
	}
	return esc, nil
}

// payMilestone releases the milestone amount to the freelancer, marks it
// approved, and applies the completion rule, all inside the caller's
// transaction. Reports whether the payment completed the escrow.
func (r *Registry) payMilestone(ctx context.Context, tx pgx.Tx, esc *models.Escrow, ms *models.Milestone) (completed bool, err error) {
	if err := r.custody.Release(ctx, tx, esc.ID, ms.ID, esc.FreelancerID, ms.AmountCents, esc.Remaining()); err != nil {
		return false, r.loudIfCorrupt(err, esc.ID)
	}
	if err := r.milestones.SetApproved(ctx, tx, esc.ID, ms.ID); err != nil {
		return false, err
	}
	status := models.EscrowStatusActive
	if esc.PaidCents+ms.AmountCents == esc.TotalCents {
		status = models.EscrowStatusCompleted
	}
	if err := r.escrows.RecordPayment(ctx, tx, esc.ID, ms.AmountCents, status); err != nil {
		return false, err
	}
	return status == models.EscrowStatusCompleted, nil
}

func (r *Registry) emit(ctx context.Context, tx pgx.Tx, args notify.EscrowEventArgs) error {
	if r.enqueue == nil {
		return nil
	}
	return r.enqueue(ctx, tx, args)
}

// loudIfCorrupt logs ledger corruption at error level before returning it; it
// indicates a registry bug, never bad input.
func (r *Registry) loudIfCorrupt(err error, escrowID int64) error {
	if errors.Is(err, ErrLedgerCorruption) {
		r.logger.Error("custody invariant violated", "escrow_id", escrowID, "error", err)
	}
	return err
}

func notFoundIfNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
