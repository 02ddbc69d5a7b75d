package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/dao/memory"
)

type fixture struct {
	db  *memory.Service
	at  time.Time
	seq int
}

func (f *fixture) request(t *testing.T, action model.Action, assigned string, path ...struct {
	status model.Status
	admin  string
}) string {
	ctx := context.Background()
	f.seq++
	id := fmt.Sprintf("a%d", f.seq)
	resourceType := model.ResourceEscrow
	if action == model.ActionDisputeResolution {
		resourceType = model.ResourceDispute
	}
	request := &model.ApprovalRequest{ID: id, AdminID: "requester", ResourceType: resourceType, ResourceID: id, Action: action,
		Status: model.StatusPending, CreatedAt: f.at, Version: 1,
		Metadata: model.Metadata{model.MetaRouting: &model.Routing{AssignedAdminID: assigned}}}
	require.NoError(t, f.db.Create(ctx, request, &model.TransitionEvent{ApprovalID: id, Version: 1, NewStatus: model.StatusPending, OccurredAt: f.at}, nil))
	for i, step := range path {
		next := request.Clone()
		next.Status, next.Version = step.status, request.Version+1
		event := &model.TransitionEvent{ApprovalID: id, Version: next.Version, PreviousStatus: request.Status, NewStatus: step.status,
			AdminID: step.admin, ResourceType: request.ResourceType, Action: action, OccurredAt: f.at.Add(time.Duration(i+1) * time.Second)}
		require.NoError(t, f.db.Commit(ctx, &dao.Commit{Request: next, ExpectedVersion: request.Version, Event: event}))
		request = next
	}
	return id
}

type step = struct {
	status model.Status
	admin  string
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	f := &fixture{db: memory.New(), at: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	f.request(t, model.ActionEscrowRelease, "", step{model.StatusApproved, "alice"})
	f.request(t, model.ActionEscrowRelease, "", step{model.StatusApproved, "alice"}, step{model.StatusRejected, "bob"})
	f.request(t, model.ActionDisputeResolution, "", step{model.StatusApproved, "alice"})
	f.request(t, model.ActionEscrowRelease, "bob")
	f.request(t, model.ActionEscrowRelease, "bob", step{model.StatusUnderReview, "bob"})
	f.request(t, model.ActionEscrowRelease, "alice", step{model.StatusRejected, "alice"})

	roster := NewMemoryRoster(
		&Admin{ID: "alice", Active: true, Capabilities: []string{CapabilityApprove}},
		&Admin{ID: "bob", Active: true, Capabilities: []string{CapabilityApprove}},
		&Admin{ID: "carol", Active: false, Capabilities: []string{CapabilityApprove}},
	)
	srv := New(roster, f.db, f.db)

	alice, err := srv.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, alice.Approvals)
	assert.Equal(t, 2, alice.Successes)
	assert.InDelta(t, 2.0/3.0, alice.SuccessRate(), 1e-9)
	assert.Equal(t, ActionStats{Approvals: 2, Successes: 1}, alice.Action(model.ActionEscrowRelease))
	assert.Equal(t, 0, alice.Workload)

	all, err := srv.AllStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[1].AdminID)
	assert.Equal(t, 2, all[1].Workload)
	assert.Equal(t, 0, all[1].Approvals)
	assert.Equal(t, 0.0, all[1].SuccessRate())
}

func TestService_RejectionRate(t *testing.T) {
	ctx := context.Background()
	f := &fixture{db: memory.New(), at: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	srv := New(NewMemoryRoster(), f.db, f.db)
	since, until := f.at.Add(-time.Hour), f.at.Add(time.Hour)

	_, ok, err := srv.RejectionRate(ctx, model.ResourceEscrow, model.ActionEscrowRelease, since, until)
	require.NoError(t, err)
	assert.False(t, ok)

	f.request(t, model.ActionEscrowRelease, "", step{model.StatusApproved, "alice"})
	f.request(t, model.ActionEscrowRelease, "", step{model.StatusRejected, "alice"})
	f.request(t, model.ActionEscrowRelease, "", step{model.StatusRejected, "bob"})
	f.request(t, model.ActionEscrowRelease, "")
	f.request(t, model.ActionDisputeResolution, "", step{model.StatusRejected, "bob"})

	rate, ok, err := srv.RejectionRate(ctx, model.ResourceEscrow, model.ActionEscrowRelease, since, until)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)

	_, ok, _ = srv.RejectionRate(ctx, model.ResourceEscrow, model.ActionEscrowRelease, until, until.Add(time.Hour))
	assert.False(t, ok)
}

func TestAdmin_CanApprove(t *testing.T) {
	assert.True(t, (&Admin{Active: true, Capabilities: []string{CapabilityApprove}}).CanApprove())
	assert.False(t, (&Admin{Active: false, Capabilities: []string{CapabilityApprove}}).CanApprove())
	assert.False(t, (&Admin{Active: true}).CanApprove())
	var nilAdmin *Admin
	assert.False(t, nilAdmin.CanApprove())
}

// scanOnly hides the aggregation of the memory store.
type scanOnly struct {
	dao.EventDAO
}

type countingStore struct {
	*memory.Service
	counts int
	lists  int
}

func (c *countingStore) ApprovalCounts(ctx context.Context, adminIDs []string) ([]*dao.ApprovalCount, error) {
	c.counts++
	return c.Service.ApprovalCounts(ctx, adminIDs)
}

func (c *countingStore) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRequest, error) {
	c.lists++
	return c.Service.List(ctx, parameters...)
}

func TestService_StatsAggregation(t *testing.T) {
	ctx := context.Background()
	f := &fixture{db: memory.New(), at: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	f.request(t, model.ActionEscrowRelease, "", step{model.StatusApproved, "alice"})
	f.request(t, model.ActionEscrowRelease, "", step{model.StatusApproved, "alice"}, step{model.StatusRejected, "bob"})
	f.request(t, model.ActionDisputeResolution, "", step{model.StatusApproved, "bob"})
	f.request(t, model.ActionEscrowRelease, "alice", step{model.StatusUnderReview, "bob"})
	roster := NewMemoryRoster(
		&Admin{ID: "alice", Active: true, Capabilities: []string{CapabilityApprove}},
		&Admin{ID: "bob", Active: true, Capabilities: []string{CapabilityApprove}},
	)

	indexed, err := New(roster, f.db, f.db).AllStats(ctx)
	require.NoError(t, err)
	scanned, err := New(roster, scanOnly{EventDAO: f.db}, f.db).AllStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, scanned, indexed)
	require.Len(t, indexed, 2)
	assert.Equal(t, ActionStats{Approvals: 2, Successes: 1}, indexed[0].Action(model.ActionEscrowRelease))
	assert.Equal(t, 1, indexed[0].Workload)
	assert.Equal(t, ActionStats{Approvals: 1, Successes: 1}, indexed[1].Action(model.ActionDisputeResolution))

	counts, err := f.db.ApprovalCounts(ctx, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []*dao.ApprovalCount{{AdminID: "bob", Action: model.ActionDisputeResolution, Approvals: 1, Successes: 1}}, counts)
}

func TestService_Snapshot(t *testing.T) {
	testCases := []struct {
		name      string
		snapshot  bool
		wantReads int
	}{
		{name: "per call", wantReads: 2},
		{name: "shared snapshot", snapshot: true, wantReads: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fixture{db: memory.New(), at: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
			f.request(t, model.ActionEscrowRelease, "bob", step{model.StatusApproved, "alice"})
			f.request(t, model.ActionEscrowRelease, "bob")
			db := &countingStore{Service: f.db}
			roster := NewMemoryRoster(
				&Admin{ID: "alice", Active: true, Capabilities: []string{CapabilityApprove}},
				&Admin{ID: "bob", Active: true, Capabilities: []string{CapabilityApprove}},
			)
			srv := New(roster, db, db)
			ctx := context.Background()
			if tc.snapshot {
				ctx = WithSnapshot(ctx)
			}

			alice, err := srv.Stats(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, 1, alice.Approvals)
			all, err := srv.AllStats(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, 1, all[1].Workload)
			assert.Equal(t, tc.wantReads, db.counts)
			assert.Equal(t, tc.wantReads, db.lists)
		})
	}
}
