package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/directory"
)

type stubDirectory struct {
	stats []*directory.Stats
	err   error
}

func (d *stubDirectory) AllStats(ctx context.Context) ([]*directory.Stats, error) {
	return d.stats, d.err
}

func admins() []*directory.Stats {
	return []*directory.Stats{
		{AdminID: "adm-junior", Approvals: 3, Successes: 3, Workload: 0},
		{AdminID: "adm-mid", Approvals: 30, Successes: 27, Workload: 4,
			ByAction: map[model.Action]*directory.ActionStats{model.ActionDisputeResolution: {Approvals: 12, Successes: 12}}},
		{AdminID: "adm-senior", Approvals: 80, Successes: 76, Workload: 6,
			ByAction: map[model.Action]*directory.ActionStats{model.ActionDisputeResolution: {Approvals: 40, Successes: 30}}},
		{AdminID: "adm-veteran", Approvals: 200, Successes: 180, Workload: 2},
	}
}

func TestStrategy(t *testing.T) {
	p := policy.Default()
	testCases := []struct {
		name      string
		score     float64
		highValue bool
		expect    model.RoutingStrategy
	}{
		{name: "low", score: 0.4, expect: model.StrategyStandard},
		{name: "band edge", score: 0.5, expect: model.StrategyStandard},
		{name: "medium", score: 0.6, expect: model.StrategyExperienced},
		{name: "soft edge", score: 0.7, expect: model.StrategyExperienced},
		{name: "above soft", score: 0.75, expect: model.StrategyEscalated},
		{name: "above ceiling", score: 0.9, expect: model.StrategyEscalated},
		{name: "high value", score: 0.1, highValue: true, expect: model.StrategyEscalated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, Strategy(p, tc.score, tc.highValue))
		})
	}
}

func TestService_Route(t *testing.T) {
	testCases := []struct {
		name             string
		stats            []*directory.Stats
		action           model.Action
		assessment       *model.RiskAssessment
		expectStrategy   model.RoutingStrategy
		expectAdmin      string
		expectEscalation bool
	}{
		{
			name:           "standard picks lightest workload",
			stats:          admins(),
			action:         model.ActionEscrowRelease,
			assessment:     &model.RiskAssessment{Score: 0.4},
			expectStrategy: model.StrategyStandard,
			expectAdmin:    "adm-junior",
		},
		{
			name:           "experienced picks best on the action",
			stats:          admins(),
			action:         model.ActionDisputeResolution,
			assessment:     &model.RiskAssessment{Score: 0.6},
			expectStrategy: model.StrategyExperienced,
			expectAdmin:    "adm-mid",
		},
		{
			name:           "experienced falls back to lightest workload",
			stats:          admins(),
			action:         model.ActionOrderFinalization,
			assessment:     &model.RiskAssessment{Score: 0.6},
			expectStrategy: model.StrategyExperienced,
			expectAdmin:    "adm-junior",
		},
		{
			name:             "escalated picks senior with best record",
			stats:            admins(),
			action:           model.ActionEscrowRelease,
			assessment:       &model.RiskAssessment{Score: 0.2, HighValue: true},
			expectStrategy:   model.StrategyEscalated,
			expectAdmin:      "adm-senior",
			expectEscalation: true,
		},
		{
			name:             "escalated without seniors",
			stats:            admins()[:2],
			action:           model.ActionEscrowRelease,
			assessment:       &model.RiskAssessment{Score: 0.85},
			expectStrategy:   model.StrategyEscalated,
			expectAdmin:      "adm-junior",
			expectEscalation: true,
		},
		{
			name:           "no admins",
			action:         model.ActionEscrowRelease,
			assessment:     &model.RiskAssessment{Score: 0.1},
			expectStrategy: model.StrategyStandard,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(&stubDirectory{stats: tc.stats})
			routing, err := srv.Route(context.Background(), tc.action, tc.assessment)
			require.NoError(t, err)
			assert.Equal(t, tc.expectStrategy, routing.Strategy)
			assert.Equal(t, tc.expectAdmin, routing.AssignedAdminID)
			assert.Equal(t, tc.expectEscalation, routing.RequiresEscalation)
		})
	}
}

func TestService_RouteDirectoryFailure(t *testing.T) {
	srv := New(&stubDirectory{err: errors.New("roster down")})
	routing, err := srv.Route(context.Background(), model.ActionEscrowRelease, &model.RiskAssessment{Score: 0.75})
	assert.Error(t, err)
	require.NotNil(t, routing)
	assert.Equal(t, model.StrategyEscalated, routing.Strategy)
	assert.True(t, routing.RequiresEscalation)
	assert.Empty(t, routing.AssignedAdminID)
}
