package model

import "time"

// TransitionEvent is the immutable audit record of one committed
// transition. The creation of a request is recorded with an empty
// PreviousStatus.
type TransitionEvent struct {
	ID             string       `json:"id"`
	ApprovalID     string       `json:"approvalId"`
	Version        int          `json:"version"`
	PreviousStatus Status       `json:"previousStatus,omitempty"`
	NewStatus      Status       `json:"newStatus"`
	AdminID        string       `json:"adminId"`
	ResourceType   ResourceType `json:"resourceType"`
	ResourceID     string       `json:"resourceId"`
	Action         Action       `json:"action"`
	Reason         string       `json:"reason,omitempty"`
	Metadata       Metadata     `json:"metadata,omitempty"`
	OccurredAt     time.Time    `json:"occurredAt"`
}

// IsCreation returns true for the first event of a request.
func (e *TransitionEvent) IsCreation() bool {
	return e.PreviousStatus == ""
}

// Published event names.
const (
	EventApprovalProcessed = "admin_approval_processed"
	EventEscrowApproved    = "escrow_approved"
	EventOrderApproved     = "order_approved"
	EventDisputeApproved   = "dispute_approved"
)

// ApprovedEventName returns the resource-specific event name.
func ApprovedEventName(resourceType ResourceType) string {
	switch resourceType {
	case ResourceEscrow:
		return EventEscrowApproved
	case ResourceOrder:
		return EventOrderApproved
	case ResourceDispute:
		return EventDisputeApproved
	}
	return ""
}

// PublishedEvent is delivered to external consumers at least once.
type PublishedEvent struct {
	Name         string       `json:"name"`
	ApprovalID   string       `json:"approvalId"`
	OldStatus    Status       `json:"oldStatus"`
	NewStatus    Status       `json:"newStatus"`
	AdminID      string       `json:"adminId"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Action       Action       `json:"action"`
	Timestamp    time.Time    `json:"timestamp"`
}

// OutboxMessage is a published event waiting for delivery. It is written in
// the same transaction as the state change it describes.
type OutboxMessage struct {
	ID            string          `json:"id"`
	ApprovalID    string          `json:"approvalId"`
	Event         *PublishedEvent `json:"event"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	DispatchedAt  *time.Time      `json:"dispatchedAt,omitempty"`
	DeadLettered  bool            `json:"deadLettered,omitempty"`
}
