package validation

import (
	"context"
	"sync"

	"github.com/viant/adminflow/model"
)

// RiskFunc returns the risk assessment of the command, blocking until it is
// available.
type RiskFunc func(ctx context.Context) (*model.RiskAssessment, error)

// Input is what the checks validate.
type Input struct {
	Command *model.Command
	// Current is the stored request; nil for a submission.
	Current *model.ApprovalRequest
	Risk    RiskFunc

	resource func() (*model.Resource, error)
}

// IsSubmission returns true when the command opens a new request.
func (i *Input) IsSubmission() bool {
	return i.Current == nil && i.Command.ApprovalID == ""
}

// TakesEffect returns true for commands after which the action may execute.
func (i *Input) TakesEffect() bool {
	return i.IsSubmission() || i.Command.TargetStatus == model.StatusApproved
}

// Resource returns the resource snapshot, loaded once per pipeline run.
func (i *Input) Resource() (*model.Resource, error) {
	return i.resource()
}

func (i *Input) bind(ctx context.Context, lookup func(ctx context.Context, resourceType model.ResourceType, id string) (*model.Resource, error)) {
	i.resource = sync.OnceValues(func() (*model.Resource, error) {
		return lookup(ctx, i.Command.ResourceType, i.Command.ResourceID)
	})
}
