package event

type Type string

const (
	TypeLeadCreated        Type = "lead.created"
	TypeLeadUpdated        Type = "lead.updated"
	TypeOpportunityCreated Type = "opportunity.created"
	TypeOpportunityUpdated Type = "opportunity.updated"
	TypeOpportunityMoved   Type = "opportunity.moved"

	// Undo window lifecycle. Clients show a toast with an Undo button on
	// pending and dismiss it on any of the others.
	TypeDeletionPending   Type = "deletion.pending"
	TypeDeletionUndone    Type = "deletion.undone"
	TypeDeletionCommitted Type = "deletion.committed"
	TypeDeletionFailed    Type = "deletion.failed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	TenantID  string `json:"tenant_id"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"` // Who triggered the event
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
