package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freelanceguard/backend/internal/models"
	"github.com/freelanceguard/backend/internal/notify"
)

// RaiseDispute opens a dispute over a submitted milestone. Either party of the
// escrow may raise one; dispute ids are globally dense starting at 1.
func (r *Registry) RaiseDispute(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64, reason string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := r.activeEscrowForUpdate(ctx, tx, escrowID)
	if err != nil {
		return 0, err
	}
	if err := requireParty(caller, esc.ClientID, esc.FreelancerID); err != nil {
		return 0, err
	}
	ms, err := r.milestones.GetForUpdate(ctx, tx, escrowID, milestoneID)
	if err != nil {
		return 0, notFoundIfNoRows(err)
	}
	if ms.Status != models.MilestoneStatusSubmitted {
		return 0, ErrInvalidState
	}

	id, err := r.disputes.NextID(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := r.disputes.Create(ctx, tx, &models.Dispute{
		ID:          id,
		EscrowID:    escrowID,
		MilestoneID: milestoneID,
		RaisedBy:    caller,
		Reason:      reason,
	}); err != nil {
		return 0, err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventDisputeRaised,
		EscrowID:    escrowID,
		MilestoneID: milestoneID,
		DisputeID:   id,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// ResolveDispute records the arbitrator's one-time decision. In favor of the
// freelancer it pays the milestone amount exactly as ApproveMilestone does;
// against the freelancer it rejects the milestone with the resolution text and
// moves no funds. The disputed milestone must still be submitted, so a stale
// dispute can never pay twice.
func (r *Registry) ResolveDispute(ctx context.Context, caller uuid.UUID, disputeID int64, favorFreelancer bool, resolution string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := r.disputes.GetByIDForUpdate(ctx, tx, disputeID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	esc, err := r.escrows.GetByIDForUpdate(ctx, tx, d.EscrowID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	if err := requireCaller(caller, esc.ArbitratorID); err != nil {
		return err
	}
	if d.Resolved {
		return ErrAlreadyResolved
	}
	if esc.Status != models.EscrowStatusActive {
		return ErrInvalidState
	}
	ms, err := r.milestones.GetForUpdate(ctx, tx, d.EscrowID, d.MilestoneID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	if ms.Status != models.MilestoneStatusSubmitted {
		return ErrInvalidState
	}

	completed := false
	if favorFreelancer {
		completed, err = r.payMilestone(ctx, tx, esc, ms)
		if err != nil {
			return err
		}
	} else {
		if err := r.milestones.SetRejected(ctx, tx, d.EscrowID, d.MilestoneID, resolution); err != nil {
			return err
		}
	}
	if err := r.disputes.MarkResolved(ctx, tx, disputeID, resolution, time.Now().UTC()); err != nil {
		return err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventDisputeResolved,
		EscrowID:    d.EscrowID,
		MilestoneID: d.MilestoneID,
		DisputeID:   disputeID,
	}); err != nil {
		return err
	}
	if completed {
		if err := r.emit(ctx, tx, notify.EscrowEventArgs{
			Event:    notify.EventEscrowCompleted,
			EscrowID: d.EscrowID,
		}); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
