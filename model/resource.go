package model

// ResourceType identifies the kind of governed resource
type ResourceType string

const (
	ResourceEscrow  ResourceType = "escrow"
	ResourceOrder   ResourceType = "order"
	ResourceDispute ResourceType = "dispute"
)

// IsValid returns true for a supported resource type.
func (r ResourceType) IsValid() bool {
	switch r {
	case ResourceEscrow, ResourceOrder, ResourceDispute:
		return true
	}
	return false
}

// Action is the privileged operation being gated
type Action string

const (
	ActionEscrowRelease     Action = "escrow_release"
	ActionEscrowRefund      Action = "escrow_refund"
	ActionOrderFinalization Action = "order_finalization"
	ActionDisputeResolution Action = "dispute_resolution"
)

// Resource is a read-only snapshot of the governed resource as seen by the
// business-rule checks and the risk engine. Amount and Balance are expressed
// in the smallest currency unit.
type Resource struct {
	Type        ResourceType `json:"type"`
	ID          string       `json:"id"`
	Amount      int64        `json:"amount"`
	Balance     int64        `json:"balance,omitempty"`
	Currency    string       `json:"currency,omitempty"`
	Refundable  bool         `json:"refundable,omitempty"`
	Finalizable bool         `json:"finalizable,omitempty"`
	Resolvable  bool         `json:"resolvable,omitempty"`
	// Completed lists actions that already took effect on the resource.
	Completed []Action `json:"completed,omitempty"`
}

// HasCompleted returns true when action already took effect on the resource.
func (r *Resource) HasCompleted(action Action) bool {
	if r == nil {
		return false
	}
	for _, candidate := range r.Completed {
		if candidate == action {
			return true
		}
	}
	return false
}
