package notify

// Escrow lifecycle event names delivered to the configured webhook.
const (
	EventEscrowCreated      = "escrow.created"
	EventEscrowCancelled    = "escrow.cancelled"
	EventEscrowCompleted    = "escrow.completed"
	EventMilestoneAdded     = "milestone.added"
	EventMilestoneSubmitted = "milestone.submitted"
	EventMilestoneApproved  = "milestone.approved"
	EventMilestoneRejected  = "milestone.rejected"
	EventDisputeRaised      = "dispute.raised"
	EventDisputeResolved    = "dispute.resolved"
)

// EscrowEventArgs is the River job payload for one escrow lifecycle event. It
// is enqueued in the same transaction as the state change it describes, so an
// event exists iff the change committed.
type EscrowEventArgs struct {
	Event       string `json:"event"`
	EscrowID    int64  `json:"escrow_id"`
	MilestoneID int64  `json:"milestone_id,omitempty"`
	DisputeID   int64  `json:"dispute_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

func (EscrowEventArgs) Kind() string { return "escrow_event" }
