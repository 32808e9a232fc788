package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freelanceguard/backend/internal/models"
	"github.com/freelanceguard/backend/internal/notify"
)

// AddMilestone appends a new pending milestone to an active escrow. Milestone
// ids are dense per escrow starting at 1. The running sum of milestone amounts
// may not exceed the escrow total.
func (r *Registry) AddMilestone(ctx context.Context, caller uuid.UUID, escrowID int64, label string, amountCents int64, deadline *time.Time) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := r.escrows.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return 0, notFoundIfNoRows(err)
	}
	if err := requireCaller(caller, esc.ClientID); err != nil {
		return 0, err
	}
	if esc.Status != models.EscrowStatusActive {
		return 0, ErrInvalidState
	}
	if esc.AllocatedCents+amountCents > esc.TotalCents {
		return 0, ErrInvalidAmount
	}

	id, err := r.escrows.ReserveMilestone(ctx, tx, escrowID, amountCents)
	if err != nil {
		return 0, err
	}
	if err := r.milestones.Create(ctx, tx, &models.Milestone{
		EscrowID:    escrowID,
		ID:          id,
		Label:       label,
		AmountCents: amountCents,
		Status:      models.MilestoneStatusPending,
		Deadline:    deadline,
	}); err != nil {
		return 0, err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventMilestoneAdded,
		EscrowID:    escrowID,
		MilestoneID: id,
		AmountCents: amountCents,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// SubmitMilestone records the freelancer's deliverable. Legal from pending or
// rejected (resubmission after rejection); submitting a milestone that is
// already submitted or approved fails with ErrAlreadySubmitted.
func (r *Registry) SubmitMilestone(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64, notes string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := r.activeEscrowForUpdate(ctx, tx, escrowID)
	if err != nil {
		return err
	}
	if err := requireCaller(caller, esc.FreelancerID); err != nil {
		return err
	}
	ms, err := r.milestones.GetForUpdate(ctx, tx, escrowID, milestoneID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	switch ms.Status {
	case models.MilestoneStatusPending, models.MilestoneStatusRejected:
	default:
		return ErrAlreadySubmitted
	}

	if err := r.milestones.SetSubmitted(ctx, tx, escrowID, milestoneID, notes, time.Now().UTC()); err != nil {
		return err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventMilestoneSubmitted,
		EscrowID:    escrowID,
		MilestoneID: milestoneID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ApproveMilestone pays the milestone amount to the freelancer and marks the
// milestone approved in one transaction. When the payment brings paid up to
// total, the escrow completes in the same step.
func (r *Registry) ApproveMilestone(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := r.activeEscrowForUpdate(ctx, tx, escrowID)
	if err != nil {
		return err
	}
	if err := requireCaller(caller, esc.ClientID); err != nil {
		return err
	}
	ms, err := r.milestones.GetForUpdate(ctx, tx, escrowID, milestoneID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	if ms.Status != models.MilestoneStatusSubmitted {
		return ErrInvalidState
	}

	completed, err := r.payMilestone(ctx, tx, esc, ms)
	if err != nil {
		return err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventMilestoneApproved,
		EscrowID:    escrowID,
		MilestoneID: milestoneID,
		AmountCents: ms.AmountCents,
	}); err != nil {
		return err
	}
	if completed {
		if err := r.emit(ctx, tx, notify.EscrowEventArgs{
			Event:    notify.EventEscrowCompleted,
			EscrowID: escrowID,
		}); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RejectMilestone sends a submitted milestone back to the freelancer with a
// reason. No funds move; the milestone may be resubmitted.
func (r *Registry) RejectMilestone(ctx context.Context, caller uuid.UUID, escrowID, milestoneID int64, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	esc, err := r.activeEscrowForUpdate(ctx, tx, escrowID)
	if err != nil {
		return err
	}
	if err := requireCaller(caller, esc.ClientID); err != nil {
		return err
	}
	ms, err := r.milestones.GetForUpdate(ctx, tx, escrowID, milestoneID)
	if err != nil {
		return notFoundIfNoRows(err)
	}
	if ms.Status != models.MilestoneStatusSubmitted {
		return ErrInvalidState
	}

	if err := r.milestones.SetRejected(ctx, tx, escrowID, milestoneID, reason); err != nil {
		return err
	}
	if err := r.emit(ctx, tx, notify.EscrowEventArgs{
		Event:       notify.EventMilestoneRejected,
		EscrowID:    escrowID,
		MilestoneID: milestoneID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
