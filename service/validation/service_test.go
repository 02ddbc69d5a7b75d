package validation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/resource"
)

func newPipeline(options ...Option) *Service {
	roster := directory.NewMemoryRoster(
		&directory.Admin{ID: "adm-1", Active: true, Capabilities: []string{directory.CapabilityApprove}},
		&directory.Admin{ID: "viewer", Active: true},
	)
	lookup := resource.NewMemory(
		&model.Resource{Type: model.ResourceEscrow, ID: "esc-1", Amount: 50000, Balance: 50000},
		&model.Resource{Type: model.ResourceEscrow, ID: "esc-low", Amount: 50000, Balance: 100},
		&model.Resource{Type: model.ResourceEscrow, ID: "esc-done", Amount: 100, Balance: 100, Completed: []model.Action{model.ActionEscrowRelease}},
		&model.Resource{Type: model.ResourceOrder, ID: "ord-1", Amount: 1000},
		&model.Resource{Type: model.ResourceDispute, ID: "dsp-1", Resolvable: true},
	)
	options = append([]Option{WithChecks(AdminPermission(roster), ResourceState(), BusinessRules(), RiskThreshold(policy.Default()))}, options...)
	return New(lookup, options...)
}

func scored(score float64) RiskFunc {
	return func(ctx context.Context) (*model.RiskAssessment, error) {
		return &model.RiskAssessment{Score: score}, nil
	}
}

func TestService_Run(t *testing.T) {
	current := &model.ApprovalRequest{ID: "a1", Status: model.StatusPending, Version: 1}
	approve := func(resourceType model.ResourceType, id string, action model.Action) *model.Command {
		return &model.Command{ApprovalID: "a1", AdminID: "adm-1", ResourceType: resourceType, ResourceID: id, Action: action, TargetStatus: model.StatusApproved}
	}

	testCases := []struct {
		name        string
		command     *model.Command
		current     *model.ApprovalRequest
		risk        RiskFunc
		expectCheck string
		expectKind  error
	}{
		{name: "valid approval", command: approve(model.ResourceEscrow, "esc-1", model.ActionEscrowRelease), current: current, risk: scored(0.4)},
		{name: "unknown admin", command: func() *model.Command {
			c := approve(model.ResourceEscrow, "esc-1", model.ActionEscrowRelease)
			c.AdminID = "ghost"
			return c
		}(), current: current, risk: scored(0.4), expectCheck: CheckAdminPermission, expectKind: model.ErrValidation},
		{name: "admin without capability", command: func() *model.Command {
			c := approve(model.ResourceEscrow, "esc-1", model.ActionEscrowRelease)
			c.AdminID = "viewer"
			return c
		}(), current: current, risk: scored(0.4), expectCheck: CheckAdminPermission, expectKind: model.ErrValidation},
		{name: "missing resource", command: approve(model.ResourceEscrow, "esc-x", model.ActionEscrowRelease), current: current, risk: scored(0.1), expectCheck: CheckResourceState, expectKind: model.ErrValidation},
		{name: "already released", command: approve(model.ResourceEscrow, "esc-done", model.ActionEscrowRelease), current: current, risk: scored(0.1), expectCheck: CheckResourceState, expectKind: model.ErrValidation},
		{name: "insufficient balance", command: approve(model.ResourceEscrow, "esc-low", model.ActionEscrowRelease), current: current, risk: scored(0.1), expectCheck: CheckBusinessRules, expectKind: model.ErrValidation},
		{name: "escrow not refundable", command: approve(model.ResourceEscrow, "esc-1", model.ActionEscrowRefund), current: current, risk: scored(0.1), expectCheck: CheckBusinessRules, expectKind: model.ErrValidation},
		{name: "order not finalizable", command: approve(model.ResourceOrder, "ord-1", model.ActionOrderFinalization), current: current, risk: scored(0.1), expectCheck: CheckBusinessRules, expectKind: model.ErrValidation},
		{name: "action mismatch", command: approve(model.ResourceOrder, "ord-1", model.ActionDisputeResolution), current: current, risk: scored(0.1), expectCheck: CheckBusinessRules, expectKind: model.ErrValidation},
		{name: "dispute resolvable", command: approve(model.ResourceDispute, "dsp-1", model.ActionDisputeResolution), current: current, risk: scored(0.75)},
		{name: "risk above ceiling", command: approve(model.ResourceDispute, "dsp-1", model.ActionDisputeResolution), current: current, risk: scored(0.81), expectCheck: CheckRiskThreshold, expectKind: model.ErrRiskThresholdExceeded},
		{name: "rejection ignores risk and rules", command: func() *model.Command {
			c := approve(model.ResourceEscrow, "esc-low", model.ActionEscrowRelease)
			c.TargetStatus = model.StatusRejected
			return c
		}(), current: current, risk: scored(0.95)},
		{name: "submission checks rules", command: &model.Command{AdminID: "adm-1", ResourceType: model.ResourceOrder, ResourceID: "ord-1", Action: model.ActionOrderFinalization},
			expectCheck: CheckBusinessRules, expectKind: model.ErrValidation},
		{name: "risk failure", command: approve(model.ResourceEscrow, "esc-1", model.ActionEscrowRelease), current: current,
			risk: func(ctx context.Context) (*model.RiskAssessment, error) {
				return nil, model.NewDependencyUnavailable("risk", errors.New("timeout"))
			}, expectCheck: CheckRiskThreshold, expectKind: model.ErrDependencyUnavailable},
		{name: "unclassified risk failure", command: approve(model.ResourceEscrow, "esc-1", model.ActionEscrowRelease), current: current,
			risk: func(ctx context.Context) (*model.RiskAssessment, error) {
				return nil, errors.New("model server returned 502")
			}, expectCheck: CheckRiskThreshold, expectKind: model.ErrDependencyUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := newPipeline().Run(context.Background(), &Input{Command: tc.command, Current: tc.current, Risk: tc.risk})
			if tc.expectCheck == "" {
				assert.True(t, result.OK(), result.Summary())
				assert.NoError(t, result.Err())
				return
			}
			require.False(t, result.OK())
			assert.Equal(t, tc.expectCheck, result.Failures[0].Check)
			assert.ErrorIs(t, result.Err(), tc.expectKind)
			if tc.expectKind == model.ErrDependencyUnavailable {
				assert.NotErrorIs(t, result.Err(), model.ErrValidation)
			}
		})
	}
}

func TestService_RunWaitsForAllChecks(t *testing.T) {
	var completed atomic.Int32
	slow := func(id string, err error) Check {
		return &CheckFunc{ID: id, Fn: func(ctx context.Context, in *Input) error {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return err
		}}
	}
	panicking := &CheckFunc{ID: "exploding", Fn: func(ctx context.Context, in *Input) error { panic("nil map") }}
	srv := New(resource.NewMemory(), WithWorkers(2), WithChecks(
		slow("first", nil),
		panicking,
		slow("second", model.NewValidationError("second", "nope")),
		slow("third", nil),
	))
	result := srv.Run(context.Background(), &Input{Command: &model.Command{AdminID: "adm-1"}})
	assert.Equal(t, int32(3), completed.Load())
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "exploding", result.Failures[0].Check)
	assert.Equal(t, "second", result.Failures[1].Check)
	assert.ErrorIs(t, result.Err(), model.ErrValidation)
	assert.Contains(t, result.Summary(), "panicked")
}
