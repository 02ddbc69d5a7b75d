// Package routing selects the strategy and the admin that should handle an
// approval, based on its risk assessment and the admins' track records.
package routing

import (
	"context"
	"fmt"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/directory"
	"go.uber.org/zap"
)

// Candidate thresholds.
const (
	SeniorMinApprovals      = 50
	ExperiencedMinApprovals = 10
)

// Directory lists the statistics of admins able to approve.
type Directory interface {
	AllStats(ctx context.Context) ([]*directory.Stats, error)
}

// Service represents the routing engine
type Service struct {
	directory Directory
	policy    *policy.Policy
	logger    *zap.Logger
}

type Option func(*Service)

// WithPolicy sets the fallback policy.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a routing engine
func New(dir Directory, options ...Option) *Service {
	ret := &Service{directory: dir, policy: policy.Default(), logger: zap.NewNop()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Strategy maps a score to its routing strategy.
func Strategy(p *policy.Policy, score float64, highValue bool) model.RoutingStrategy {
	switch p.Decide(score, highValue) {
	case policy.DecisionDeny, policy.DecisionEscalate:
		return model.StrategyEscalated
	case policy.DecisionExperienced:
		return model.StrategyExperienced
	default:
		return model.StrategyStandard
	}
}

// Route decides the strategy of assessment and picks an admin for action.
// The returned routing always carries the strategy; the assigned admin is
// empty when no admin qualifies or the directory failed, in which case the
// error is returned alongside.
func (s *Service) Route(ctx context.Context, action model.Action, assessment *model.RiskAssessment) (*model.Routing, error) {
	if assessment == nil {
		return nil, fmt.Errorf("routing: assessment was nil")
	}
	p := policy.Resolve(ctx, s.policy)
	strategy := Strategy(p, assessment.Score, assessment.HighValue)
	ret := &model.Routing{Strategy: strategy, RequiresEscalation: strategy == model.StrategyEscalated}
	candidates, err := s.directory.AllStats(ctx)
	if err != nil {
		return ret, fmt.Errorf("routing: failed to list admins: %w", err)
	}
	var selected *directory.Stats
	switch strategy {
	case model.StrategyEscalated:
		selected = Senior(candidates)
	case model.StrategyExperienced:
		selected = Experienced(candidates, action)
	}
	if selected == nil {
		selected = LightestWorkload(candidates)
	}
	if selected != nil {
		ret.AssignedAdminID = selected.AdminID
	}
	s.logger.Debug("routed approval",
		zap.String("approval_id", assessment.ApprovalID),
		zap.String("strategy", string(strategy)),
		zap.String("assigned_admin_id", ret.AssignedAdminID),
		zap.Float64("risk_score", assessment.Score))
	return ret, nil
}

// Senior returns the admin with more than SeniorMinApprovals approvals and
// the highest success rate, ties going to the larger record.
func Senior(candidates []*directory.Stats) *directory.Stats {
	var ret *directory.Stats
	for _, c := range candidates {
		if c.Approvals <= SeniorMinApprovals {
			continue
		}
		if ret == nil || c.SuccessRate() > ret.SuccessRate() ||
			(c.SuccessRate() == ret.SuccessRate() && c.Approvals > ret.Approvals) {
			ret = c
		}
	}
	return ret
}

// Experienced returns the admin with more than ExperiencedMinApprovals
// approvals of action and the highest success rate on it.
func Experienced(candidates []*directory.Stats, action model.Action) *directory.Stats {
	var ret *directory.Stats
	var best directory.ActionStats
	for _, c := range candidates {
		stats := c.Action(action)
		if stats.Approvals <= ExperiencedMinApprovals {
			continue
		}
		if ret == nil || stats.SuccessRate() > best.SuccessRate() ||
			(stats.SuccessRate() == best.SuccessRate() && stats.Approvals > best.Approvals) {
			ret, best = c, stats
		}
	}
	return ret
}

// LightestWorkload returns the admin with the fewest open assigned
// requests; candidates order breaks ties.
func LightestWorkload(candidates []*directory.Stats) *directory.Stats {
	var ret *directory.Stats
	for _, c := range candidates {
		if ret == nil || c.Workload < ret.Workload {
			ret = c
		}
	}
	return ret
}
