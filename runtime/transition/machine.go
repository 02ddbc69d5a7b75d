package transition

import (
	"time"

	"github.com/viant/adminflow/model"
)

// edges lists the legal targets of every status.
var edges = map[model.Status][]model.Status{
	model.StatusPending:     {model.StatusUnderReview, model.StatusApproved, model.StatusRejected},
	model.StatusUnderReview: {model.StatusPending, model.StatusApproved, model.StatusRejected, model.StatusEscalated},
	model.StatusApproved:    {model.StatusRejected},
	model.StatusRejected:    {model.StatusPending},
	model.StatusEscalated:   {model.StatusApproved, model.StatusRejected},
}

// Targets returns the statuses reachable from status.
func Targets(status model.Status) []model.Status {
	return append([]model.Status(nil), edges[status]...)
}

// IsAllowed returns true when from -> to is a legal edge.
func IsAllowed(from, to model.Status) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Input carries the transition details recorded with the event.
type Input struct {
	Reason   string
	Metadata model.Metadata
	At       time.Time
}

// Transition computes the state that results from moving current to target
// on behalf of actorID. current is never modified.
func Transition(current *model.ApprovalRequest, target model.Status, actorID string, in Input) (*model.ApprovalRequest, error) {
	if current == nil {
		return nil, model.NewValidationError("state", "current state is nil")
	}
	if !IsAllowed(current.Status, target) {
		return nil, &model.InvalidTransitionError{From: current.Status, To: target}
	}
	next := current.Clone()
	next.Status = target
	next.Version = current.Version + 1
	if in.Reason != "" {
		next.Reason = in.Reason
	}
	next.Metadata = next.Metadata.Merge(in.Metadata)

	switch target {
	case model.StatusApproved:
		at := in.At
		next.ApprovedAt = &at
		next.Metadata[model.MetaAdminID] = actorID
		next.Metadata[model.MetaApprovedAt] = at
	case model.StatusRejected:
		next.ApprovedAt = nil
		next.Metadata[model.MetaRejectionReason] = in.Reason
	case model.StatusEscalated:
		next.ApprovedAt = nil
		next.Metadata[model.MetaEscalationReason] = in.Reason
	case model.StatusPending, model.StatusUnderReview:
		next.ApprovedAt = nil
	}
	return next, nil
}

// Genesis builds the initial request recorded by a creation event.
func Genesis(event *model.TransitionEvent) (*model.ApprovalRequest, error) {
	if event == nil || !event.IsCreation() {
		return nil, model.NewValidationError("event", "first event must record the creation")
	}
	if event.NewStatus != model.StatusPending {
		return nil, &model.InvalidTransitionError{From: "", To: event.NewStatus}
	}
	return &model.ApprovalRequest{
		ID:           event.ApprovalID,
		AdminID:      event.AdminID,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Action:       event.Action,
		Status:       model.StatusPending,
		Reason:       event.Reason,
		Metadata:     model.Metadata{}.Merge(event.Metadata),
		CreatedAt:    event.OccurredAt,
		Version:      1,
	}, nil
}

// Apply replays a single recorded transition onto current.
func Apply(current *model.ApprovalRequest, event *model.TransitionEvent) (*model.ApprovalRequest, error) {
	if event.IsCreation() {
		return Genesis(event)
	}
	if current == nil {
		return nil, model.NewValidationError("event", "transition recorded before creation")
	}
	if event.PreviousStatus != current.Status {
		return nil, &model.InvalidTransitionError{From: current.Status, To: event.NewStatus}
	}
	next, err := Transition(current, event.NewStatus, event.AdminID, Input{Reason: event.Reason, Metadata: event.Metadata, At: event.OccurredAt})
	if err != nil {
		return nil, err
	}
	if event.Version != 0 && event.Version != next.Version {
		return nil, &model.ConcurrencyConflictError{ApprovalID: event.ApprovalID, Expected: next.Version, Actual: event.Version}
	}
	return next, nil
}

// Replay folds ordered events into the final request state.
func Replay(events []*model.TransitionEvent) (*model.ApprovalRequest, error) {
	var state *model.ApprovalRequest
	var err error
	for _, event := range events {
		if state, err = Apply(state, event); err != nil {
			return nil, err
		}
	}
	return state, nil
}
