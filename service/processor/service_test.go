package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/breaker"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/dao/memory"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/eventstore"
	"github.com/viant/adminflow/service/executor"
	"github.com/viant/adminflow/service/resource"
	"github.com/viant/adminflow/service/risk"
	"github.com/viant/adminflow/service/routing"
	"github.com/viant/adminflow/service/validation"
)

// gatedDAO lets tests intercept Load.
type gatedDAO struct {
	dao.ApprovalDAO
	mux     sync.Mutex
	barrier *sync.WaitGroup
	loadErr error
	loads   int
}

func (g *gatedDAO) Load(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	g.mux.Lock()
	g.loads++
	loadErr, barrier := g.loadErr, g.barrier
	g.mux.Unlock()
	if loadErr != nil {
		return nil, loadErr
	}
	ret, err := g.ApprovalDAO.Load(ctx, id)
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return ret, err
}

type fixture struct {
	db        *memory.Service
	gated     *gatedDAO
	resources *resource.Memory
	clock     *clock.Fixed
	processor *Service

	mux      sync.Mutex
	executed []*executor.Request
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		db:    memory.New(),
		clock: clock.NewFixed(time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC)),
		resources: resource.NewMemory(
			&model.Resource{Type: model.ResourceEscrow, ID: "esc-a", Amount: 50000, Balance: 50000, Refundable: true},
			&model.Resource{Type: model.ResourceEscrow, ID: "esc-b", Amount: 200000, Balance: 200000},
			&model.Resource{Type: model.ResourceDispute, ID: "dsp-1", Amount: 5000, Resolvable: true},
		),
	}
	f.gated = &gatedDAO{ApprovalDAO: f.db}
	capable := []string{directory.CapabilityApprove}
	roster := directory.NewMemoryRoster(
		&directory.Admin{ID: "adm-a", Active: true, Capabilities: capable},
		&directory.Admin{ID: "adm-b", Active: true, Capabilities: capable},
		&directory.Admin{ID: "adm-senior", Active: true, Capabilities: capable},
		&directory.Admin{ID: "viewer", Active: true},
	)
	admins := directory.New(roster, f.db, f.db)
	p := policy.Default()
	validator := validation.New(f.resources, validation.WithChecks(
		validation.AdminPermission(roster),
		validation.ResourceState(),
		validation.BusinessRules(),
		validation.RiskThreshold(p),
	))
	record := executor.Func(func(ctx context.Context, request *executor.Request) error {
		f.mux.Lock()
		defer f.mux.Unlock()
		f.executed = append(f.executed, request)
		return nil
	})
	var err error
	f.processor, err = New(
		WithApprovalDAO(f.gated),
		WithValidator(validator),
		WithRiskEngine(risk.New(f.resources, admins, risk.WithClock(f.clock))),
		WithRouter(routing.New(admins)),
		WithExecutor(executor.New(
			executor.WithExecutor(model.ActionEscrowRelease, record),
			executor.WithExecutor(model.ActionEscrowRefund, record),
			executor.WithExecutor(model.ActionDisputeResolution, record),
		)),
		WithBreakers(breaker.New(breaker.DefaultConfig())),
		WithPolicy(p),
		WithClock(f.clock),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) submit(t *testing.T, adminID string, resourceType model.ResourceType, resourceID string, action model.Action) *Result {
	f.clock.Advance(time.Minute)
	result, err := f.processor.Submit(context.Background(), &model.Command{
		AdminID: adminID, ResourceType: resourceType, ResourceID: resourceID, Action: action, Reason: "customer request",
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) process(submitted *Result, adminID string, target model.Status, reason string) (*Result, error) {
	f.clock.Advance(time.Minute)
	current, err := f.db.Load(context.Background(), submitted.State.ApprovalID)
	if err != nil {
		return nil, err
	}
	return f.processor.Process(context.Background(), &model.Command{
		ApprovalID:   current.ID,
		AdminID:      adminID,
		ResourceType: current.ResourceType,
		ResourceID:   current.ResourceID,
		Action:       current.Action,
		TargetStatus: target,
		Reason:       reason,
	})
}

func (f *fixture) executedCount() int {
	f.mux.Lock()
	defer f.mux.Unlock()
	return len(f.executed)
}

func TestNew(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t)
	result := f.submit(t, "adm-a", model.ResourceEscrow, "esc-a", model.ActionEscrowRelease)

	assert.Equal(t, model.StatusPending, result.State.Status)
	assert.Equal(t, 1, result.State.Version)
	assert.NotEmpty(t, result.State.ApprovalID)
	assert.Equal(t, result.State.ApprovalID, result.Assessment.ApprovalID)
	assert.Equal(t, model.StrategyStandard, result.Routing.Strategy)
	assert.Equal(t, "adm-a", result.Routing.AssignedAdminID)

	stored, err := f.db.Load(context.Background(), result.State.ApprovalID)
	require.NoError(t, err)
	require.NotNil(t, stored.RiskAssessment())
	assert.Equal(t, result.Assessment.ID, stored.RiskAssessment().ID)
	events, err := f.db.Events(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsCreation())
	assert.Empty(t, f.db.Outbox())

	_, err = f.processor.Submit(context.Background(), &model.Command{AdminID: "adm-a", ResourceType: model.ResourceEscrow, ResourceID: "esc-a"})
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = f.processor.Submit(context.Background(), &model.Command{AdminID: "viewer", ResourceType: model.ResourceEscrow, ResourceID: "esc-a", Action: model.ActionEscrowRelease})
	assert.ErrorIs(t, err, model.ErrValidation)
}

// Scenario A: low risk escrow release goes through standard routing.
func TestService_Process_StandardApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "adm-a", model.ResourceEscrow, "esc-a", model.ActionEscrowRelease)

	result, err := f.process(submitted, "adm-b", model.StatusApproved, "verified delivery")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, result.State.Status)
	assert.Equal(t, submitted.State.Version+1, result.State.Version)
	assert.Equal(t, model.StrategyStandard, result.Routing.Strategy)
	assert.LessOrEqual(t, result.Assessment.Score, 0.5)
	assert.False(t, result.Assessment.RequiresAdditionalApproval)
	require.NotNil(t, result.State.ApprovedAt)
	assert.Equal(t, "adm-b", result.State.Metadata.String(model.MetaAdminID))
	assert.NoError(t, result.SideEffectErr)

	require.Equal(t, 1, f.executedCount())
	assert.True(t, f.executed[0].AdminApproved)
	assert.Equal(t, "adm-b", f.executed[0].AdminID)
	assert.Equal(t, submitted.State.ApprovalID+":2", f.executed[0].IdempotencyKey)

	outbox := f.db.Outbox()
	require.Len(t, outbox, 2)
	assert.Equal(t, model.EventApprovalProcessed, outbox[0].Event.Name)
	assert.Equal(t, model.EventEscrowApproved, outbox[1].Event.Name)
	assert.Equal(t, model.StatusPending, outbox[0].Event.OldStatus)
	assert.Equal(t, model.StatusApproved, outbox[0].Event.NewStatus)

	store := eventstore.New(f.db, f.db)
	assert.NoError(t, store.Verify(ctx, submitted.State.ApprovalID))
}

// Scenario B: a high value escrow must pass through escalation.
func TestService_Process_HighValueEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "adm-a", model.ResourceEscrow, "esc-b", model.ActionEscrowRelease)
	assert.True(t, submitted.Assessment.HighValue)
	assert.True(t, submitted.Assessment.RequiresAdditionalApproval)
	assert.Equal(t, model.StrategyEscalated, submitted.Routing.Strategy)
	assert.True(t, submitted.Routing.RequiresEscalation)

	_, err := f.process(submitted, "adm-b", model.StatusApproved, "looks fine")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.NotErrorIs(t, err, model.ErrRiskThresholdExceeded)
	stored, err := f.db.Load(ctx, submitted.State.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, 0, f.executedCount())

	steps := []struct {
		admin  string
		target model.Status
		reason string
	}{
		{admin: "adm-b", target: model.StatusUnderReview, reason: "reviewing"},
		{admin: "adm-b", target: model.StatusEscalated, reason: "high value release"},
		{admin: "adm-senior", target: model.StatusApproved, reason: "confirmed with buyer"},
	}
	var result *Result
	for _, step := range steps {
		result, err = f.process(submitted, step.admin, step.target, step.reason)
		require.NoError(t, err, step.target)
		assert.Equal(t, step.target, result.State.Status)
	}
	assert.Equal(t, 4, result.State.Version)
	assert.Equal(t, model.StrategyEscalated, result.Routing.Strategy)
	assert.Equal(t, 1, f.executedCount())

	stored, err = f.db.Load(ctx, submitted.State.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, "high value release", stored.Metadata.String(model.MetaEscalationReason))
	assert.NoError(t, eventstore.New(f.db, f.db).Verify(ctx, submitted.State.ApprovalID))
}

// Scenario C: two admins approve the same request concurrently.
func TestService_Process_ConcurrentApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "adm-senior", model.ResourceDispute, "dsp-1", model.ActionDisputeResolution)

	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	f.gated.mux.Lock()
	f.gated.barrier = barrier
	f.gated.mux.Unlock()

	admins := []string{"adm-a", "adm-b"}
	results := make([]*Result, len(admins))
	errs := make([]error, len(admins))
	wg := sync.WaitGroup{}
	for i, adminID := range admins {
		i, adminID := i, adminID
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.processor.Process(ctx, &model.Command{
				ApprovalID:      submitted.State.ApprovalID,
				AdminID:         adminID,
				ResourceType:    model.ResourceDispute,
				ResourceID:      "dsp-1",
				Action:          model.ActionDisputeResolution,
				TargetStatus:    model.StatusApproved,
				ExpectedVersion: 1,
			})
		}()
	}
	wg.Wait()

	var committed, conflicts int
	for i := range admins {
		switch {
		case errs[i] == nil:
			committed++
			assert.Equal(t, 2, results[i].State.Version)
		case errors.Is(errs[i], model.ErrConcurrencyConflict):
			conflicts++
			assert.True(t, model.IsRetryable(errs[i]))
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, conflicts)

	stored, err := f.db.Load(ctx, submitted.State.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, model.StatusApproved, stored.Status)
	events, err := f.db.Events(ctx, stored.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 1, f.executedCount())
}

// Scenario D: a rejected request may only be resubmitted.
func TestService_Process_Resubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "adm-a", model.ResourceEscrow, "esc-a", model.ActionEscrowRefund)

	result, err := f.process(submitted, "adm-b", model.StatusRejected, "missing documents")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, result.State.Status)
	assert.Equal(t, "missing documents", result.State.Metadata.String(model.MetaRejectionReason))

	for _, target := range []model.Status{model.StatusApproved, model.StatusUnderReview, model.StatusEscalated} {
		_, err = f.process(submitted, "adm-b", target, "")
		assert.ErrorIs(t, err, model.ErrInvalidTransition, target)
	}
	stored, err := f.db.Load(ctx, submitted.State.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)

	result, err = f.process(submitted, "adm-a", model.StatusPending, "documents attached")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, result.State.Status)
	assert.Equal(t, 3, result.State.Version)
	assert.Equal(t, 0, f.executedCount())
	assert.Len(t, f.db.Outbox(), 2)
	assert.NoError(t, eventstore.New(f.db, f.db).Verify(ctx, submitted.State.ApprovalID))
}

func TestService_Process_NoMutationOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "adm-a", model.ResourceEscrow, "esc-a", model.ActionEscrowRelease)
	require.NoError(t, f.resources.MarkCompleted(ctx, model.ResourceEscrow, "esc-a", model.ActionEscrowRelease))

	testCases := []struct {
		name    string
		command *model.Command
		kind    error
	}{
		{
			name:    "malformed",
			command: &model.Command{ApprovalID: submitted.State.ApprovalID, ResourceType: model.ResourceEscrow, ResourceID: "esc-a", Action: model.ActionEscrowRelease, TargetStatus: model.StatusApproved},
			kind:    model.ErrValidation,
		},
		{
			name:    "action already applied",
			command: &model.Command{ApprovalID: submitted.State.ApprovalID, AdminID: "adm-b", ResourceType: model.ResourceEscrow, ResourceID: "esc-a", Action: model.ActionEscrowRelease, TargetStatus: model.StatusApproved},
			kind:    model.ErrValidation,
		},
		{
			name:    "command does not match approval",
			command: &model.Command{ApprovalID: submitted.State.ApprovalID, AdminID: "adm-b", ResourceType: model.ResourceDispute, ResourceID: "dsp-1", Action: model.ActionDisputeResolution, TargetStatus: model.StatusRejected},
			kind:    model.ErrValidation,
		},
		{
			name:    "unknown approval",
			command: &model.Command{ApprovalID: "missing", AdminID: "adm-b", ResourceType: model.ResourceEscrow, ResourceID: "esc-a", Action: model.ActionEscrowRelease, TargetStatus: model.StatusRejected},
			kind:    model.ErrValidation,
		},
		{
			name:    "stale expected version",
			command: &model.Command{ApprovalID: submitted.State.ApprovalID, AdminID: "adm-b", ResourceType: model.ResourceEscrow, ResourceID: "esc-a", Action: model.ActionEscrowRelease, TargetStatus: model.StatusRejected, ExpectedVersion: 3},
			kind:    model.ErrConcurrencyConflict,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.processor.Process(ctx, tc.command)
			assert.ErrorIs(t, err, tc.kind)
			stored, err := f.db.Load(ctx, submitted.State.ApprovalID)
			require.NoError(t, err)
			assert.Equal(t, 1, stored.Version)
			assert.Equal(t, model.StatusPending, stored.Status)
		})
	}
	events, err := f.db.Events(ctx, submitted.State.ApprovalID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Empty(t, f.db.Outbox())
	assert.Equal(t, 0, f.executedCount())
}

func TestService_Process_BreakerOpens(t *testing.T) {
	f := newFixture(t)
	submitted := f.submit(t, "adm-a", model.ResourceEscrow, "esc-a", model.ActionEscrowRelease)
	f.gated.mux.Lock()
	f.gated.loadErr = model.NewDependencyUnavailable("postgres", errors.New("connection refused"))
	f.gated.mux.Unlock()

	command := &model.Command{ApprovalID: submitted.State.ApprovalID, AdminID: "adm-b", ResourceType: model.ResourceEscrow,
		ResourceID: "esc-a", Action: model.ActionEscrowRelease, TargetStatus: model.StatusRejected}
	for i := 0; i < 5; i++ {
		_, err := f.processor.Process(context.Background(), command)
		require.ErrorIs(t, err, model.ErrDependencyUnavailable)
	}
	f.gated.mux.Lock()
	loads := f.gated.loads
	f.gated.mux.Unlock()
	assert.Equal(t, 5, loads)

	_, err := f.processor.Process(context.Background(), command)
	assert.ErrorIs(t, err, model.ErrDependencyUnavailable)
	f.gated.mux.Lock()
	assert.Equal(t, 5, f.gated.loads)
	f.gated.mux.Unlock()

	// other operation categories are unaffected
	f.gated.mux.Lock()
	f.gated.loadErr = nil
	f.gated.mux.Unlock()
	command.TargetStatus = model.StatusUnderReview
	_, err = f.processor.Process(context.Background(), command)
	assert.NoError(t, err)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "validation", Outcome(model.NewRiskThresholdExceeded(0.9, 0.8)))
	assert.Equal(t, "conflict", Outcome(&model.ConcurrencyConflictError{ApprovalID: "a1"}))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
