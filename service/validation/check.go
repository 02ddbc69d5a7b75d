package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/directory"
)

// Check names.
const (
	CheckAdminPermission = "admin_permission"
	CheckResourceState   = "resource_state"
	CheckBusinessRules   = "business_rules"
	CheckRiskThreshold   = "risk_threshold"
)

// Check validates one aspect of a command. A failed rule is reported as
// *model.ValidationError; any other error is an infrastructure failure.
type Check interface {
	Name() string
	Check(ctx context.Context, in *Input) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	ID string
	Fn func(ctx context.Context, in *Input) error
}

func (c *CheckFunc) Name() string { return c.ID }

func (c *CheckFunc) Check(ctx context.Context, in *Input) error { return c.Fn(ctx, in) }

// AdminPermission requires a known admin holding the approval capability.
func AdminPermission(roster directory.Roster) Check {
	return &CheckFunc{ID: CheckAdminPermission, Fn: func(ctx context.Context, in *Input) error {
		admin, err := roster.Admin(ctx, in.Command.AdminID)
		if errors.Is(err, dao.ErrNotFound) {
			return model.NewValidationError(CheckAdminPermission, "unknown admin "+in.Command.AdminID)
		}
		if err != nil {
			return model.NewDependencyUnavailable("admin roster", err)
		}
		if !admin.CanApprove() {
			return model.NewValidationError(CheckAdminPermission, "admin "+admin.ID+" may not decide approvals")
		}
		return nil
	}}
}

// ResourceState requires an existing resource on which the action has not
// already taken effect.
func ResourceState() Check {
	return &CheckFunc{ID: CheckResourceState, Fn: func(ctx context.Context, in *Input) error {
		resource, err := in.Resource()
		if err != nil {
			return resourceError(CheckResourceState, in, err)
		}
		if in.TakesEffect() && resource.HasCompleted(in.Command.Action) {
			return model.NewValidationError(CheckResourceState, fmt.Sprintf("%s already applied to %s %s", in.Command.Action, resource.Type, resource.ID))
		}
		return nil
	}}
}

// BusinessRules enforces the resource type specific preconditions.
func BusinessRules() Check {
	return &CheckFunc{ID: CheckBusinessRules, Fn: func(ctx context.Context, in *Input) error {
		if !in.TakesEffect() {
			return nil
		}
		resource, err := in.Resource()
		if err != nil {
			return resourceError(CheckBusinessRules, in, err)
		}
		fail := func(message string) error { return model.NewValidationError(CheckBusinessRules, message) }
		switch in.Command.Action {
		case model.ActionEscrowRelease:
			if resource.Type != model.ResourceEscrow {
				break
			}
			if resource.Balance < resource.Amount {
				return fail(fmt.Sprintf("escrow %s balance %d is below release amount %d", resource.ID, resource.Balance, resource.Amount))
			}
			return nil
		case model.ActionEscrowRefund:
			if resource.Type != model.ResourceEscrow {
				break
			}
			if !resource.Refundable {
				return fail("escrow " + resource.ID + " is not refundable")
			}
			return nil
		case model.ActionOrderFinalization:
			if resource.Type != model.ResourceOrder {
				break
			}
			if !resource.Finalizable {
				return fail("order " + resource.ID + " is not finalizable")
			}
			return nil
		case model.ActionDisputeResolution:
			if resource.Type != model.ResourceDispute {
				break
			}
			if !resource.Resolvable {
				return fail("dispute " + resource.ID + " is not resolvable")
			}
			return nil
		default:
			return fail("unsupported action " + string(in.Command.Action))
		}
		return fail(fmt.Sprintf("action %s does not apply to %s", in.Command.Action, resource.Type))
	}}
}

// RiskThreshold refuses approvals scored above the hard ceiling.
func RiskThreshold(fallback *policy.Policy) Check {
	return &CheckFunc{ID: CheckRiskThreshold, Fn: func(ctx context.Context, in *Input) error {
		if in.Command.TargetStatus != model.StatusApproved || in.Risk == nil {
			return nil
		}
		assessment, err := in.Risk(ctx)
		if err != nil {
			return riskError(err)
		}
		p := policy.Resolve(ctx, fallback)
		if p.ExceedsCeiling(assessment.Score) {
			return model.NewRiskThresholdExceeded(assessment.Score, p.HardCeiling)
		}
		return nil
	}}
}

func riskError(err error) error {
	if errors.Is(err, model.ErrDependencyUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return model.NewDependencyUnavailable("risk engine", err)
}

func resourceError(check string, in *Input, err error) error {
	if errors.Is(err, dao.ErrNotFound) {
		return model.NewValidationError(check, fmt.Sprintf("%s %s not found", in.Command.ResourceType, in.Command.ResourceID))
	}
	var validation *model.ValidationError
	if errors.As(err, &validation) {
		return err
	}
	return model.NewDependencyUnavailable("resource lookup", err)
}
