package models

import "time"

// Milestone status enums.
const (
	MilestoneStatusPending   = "pending"
	MilestoneStatusSubmitted = "submitted"
	MilestoneStatusApproved  = "approved"
	MilestoneStatusRejected  = "rejected"
)

// Milestone is a priced, independently approvable unit of work within an escrow.
// IDs are dense per escrow starting at 1. Deadline is advisory only; nothing
// expires automatically when it passes.
type Milestone struct {
	EscrowID        int64      `json:"escrow_id"`
	ID              int64      `json:"id"`
	Label           string     `json:"label"`
	AmountCents     int64      `json:"amount_cents"`
	Status          string     `json:"status"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	SubmissionNotes string     `json:"submission_notes,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
