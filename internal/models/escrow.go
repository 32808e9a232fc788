package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow status enums.
const (
	EscrowStatusActive    = "active"
	EscrowStatusCompleted = "completed"
	EscrowStatusCancelled = "cancelled"
)

// Escrow is the aggregate holding one client/freelancer/arbitrator relationship
// and the funds locked for it. Amounts are in the smallest currency unit.
type Escrow struct {
	ID             int64     `json:"id"`
	ClientID       uuid.UUID `json:"client_id"`
	FreelancerID   uuid.UUID `json:"freelancer_id"`
	ArbitratorID   uuid.UUID `json:"arbitrator_id"`
	TotalCents     int64     `json:"total_cents"`
	PaidCents      int64     `json:"paid_cents"`
	AllocatedCents int64     `json:"allocated_cents"`
	MilestoneCount int64     `json:"milestone_count"`
	Status         string    `json:"status"`
	Metadata       string    `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Remaining is the custody still held for this escrow.
func (e *Escrow) Remaining() int64 {
	return e.TotalCents - e.PaidCents
}
