package risk

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/internal/idgen"
	"github.com/viant/adminflow/internal/metrics"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/resource"
	"github.com/viant/adminflow/tracing"
	"go.uber.org/zap"
)

// DefaultTimeout bounds scoring.
const DefaultTimeout = 2 * time.Second

// Engine scores a command.
type Engine interface {
	Assess(ctx context.Context, subject *Subject) (*model.RiskAssessment, error)
}

// Subject is what gets assessed.
type Subject struct {
	ApprovalID   string
	AdminID      string
	ResourceType model.ResourceType
	ResourceID   string
	Action       model.Action
}

// SubjectOf returns the subject of a command.
func SubjectOf(command *model.Command) *Subject {
	return &Subject{
		ApprovalID:   command.ApprovalID,
		AdminID:      command.AdminID,
		ResourceType: command.ResourceType,
		ResourceID:   command.ResourceID,
		Action:       command.Action,
	}
}

// History supplies admin and request statistics.
type History interface {
	Stats(ctx context.Context, adminID string) (*directory.Stats, error)
	RejectionRate(ctx context.Context, resourceType model.ResourceType, action model.Action, since, until time.Time) (float64, bool, error)
}

// Service represents the risk engine
type Service struct {
	lookup      resource.Lookup
	history     History
	clock       clock.Clock
	location    *time.Location
	timeout     time.Duration
	policy      *policy.Policy
	assessments dao.AssessmentDAO
	exporter    *Exporter
	logger      *zap.Logger
}

// New creates a risk engine
func New(lookup resource.Lookup, history History, options ...Option) *Service {
	ret := &Service{
		lookup:   lookup,
		history:  history,
		clock:    clock.System(),
		location: time.UTC,
		timeout:  DefaultTimeout,
		policy:   policy.Default(),
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Assess scores subject. A cancelled ctx aborts; a timeout or a history
// failure yields the fallback assessment.
func (s *Service) Assess(ctx context.Context, subject *Subject) (assessment *model.RiskAssessment, err error) {
	ctx, span := tracing.StartSpan(ctx, "risk.Assess", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	now := s.clock.Now()
	p := policy.Resolve(ctx, s.policy)
	var loaded atomic.Pointer[model.Resource]

	scoreCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	type outcome struct {
		factors map[string]float64
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		factors, err := s.factors(scoreCtx, subject, now, &loaded)
		done <- outcome{factors: factors, err: err}
	}()

	var factors map[string]float64
	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("risk scoring failed, using fallback",
				zap.String("approval_id", subject.ApprovalID), zap.String("admin_id", subject.AdminID), zap.Error(out.err))
			break
		}
		factors = out.factors
	case <-scoreCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("risk scoring timed out, using fallback",
			zap.String("approval_id", subject.ApprovalID), zap.Duration("timeout", s.timeout))
	}

	assessment = &model.RiskAssessment{
		ID:           idgen.New(),
		ApprovalID:   subject.ApprovalID,
		AdminID:      subject.AdminID,
		ResourceType: subject.ResourceType,
		ResourceID:   subject.ResourceID,
		Action:       subject.Action,
		AssessedAt:   now,
	}
	if factors != nil {
		assessment.Factors = factors
		assessment.Score = Score(factors)
	} else {
		assessment.Fallback = true
		assessment.Score = FallbackScore(subject.ResourceType)
		assessment.Factors = map[string]float64{model.FactorResourceComplexity: ComplexityRisk(subject.ResourceType)}
		metrics.RiskFallbacks.Inc()
	}
	if r := loaded.Load(); r != nil {
		assessment.HighValue = p.IsHighValue(r.Type, r.Amount)
		assessment.RequiresAdditionalApproval = p.RequiresAdditionalApproval(assessment.Score, assessment.HighValue)
	} else {
		// amount unknown
		assessment.RequiresAdditionalApproval = true
	}
	metrics.RiskScore.WithLabelValues(string(subject.ResourceType)).Observe(assessment.Score)
	span.WithFloat("risk_score", assessment.Score)
	s.persist(ctx, assessment)
	return assessment, nil
}

func (s *Service) factors(ctx context.Context, subject *Subject, now time.Time, loaded *atomic.Pointer[model.Resource]) (map[string]float64, error) {
	r, err := s.lookup.Resource(ctx, subject.ResourceType, subject.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("resource lookup: %w", err)
	}
	loaded.Store(r)
	stats, err := s.history.Stats(ctx, subject.AdminID)
	if err != nil {
		return nil, fmt.Errorf("admin stats: %w", err)
	}
	rate, hasHistory, err := s.history.RejectionRate(ctx, subject.ResourceType, subject.Action, now.Add(-historyWindow), now)
	if err != nil {
		return nil, fmt.Errorf("rejection rate: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return map[string]float64{
		model.FactorAmount:             AmountRisk(r.Amount),
		model.FactorAdminExperience:    AdminExperienceRisk(stats.Approvals, stats.SuccessRate()),
		model.FactorResourceComplexity: ComplexityRisk(subject.ResourceType),
		model.FactorHistoricalPattern:  HistoricalRisk(rate, hasHistory),
		model.FactorTemporal:           TemporalRisk(now.In(s.location)),
	}, nil
}

func (s *Service) persist(ctx context.Context, assessment *model.RiskAssessment) {
	if s.assessments != nil {
		if err := s.assessments.Save(ctx, assessment); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("failed to persist risk assessment", zap.String("assessment_id", assessment.ID), zap.Error(err))
		}
	}
	if s.exporter != nil {
		if err := s.exporter.Export(ctx, assessment); err != nil {
			s.logger.Warn("failed to export risk assessment", zap.String("assessment_id", assessment.ID), zap.Error(err))
		}
	}
}
