package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute is a contested milestone outcome awaiting an arbitrator decision.
// Resolution happens exactly once; Resolution and ResolvedAt stay nil until then.
type Dispute struct {
	ID          int64      `json:"id"`
	EscrowID    int64      `json:"escrow_id"`
	MilestoneID int64      `json:"milestone_id"`
	RaisedBy    uuid.UUID  `json:"raised_by"`
	Reason      string     `json:"reason"`
	Resolved    bool       `json:"resolved"`
	Resolution  *string    `json:"resolution,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
