package processor

import (
	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/breaker"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/executor"
	"github.com/viant/adminflow/service/risk"
	"github.com/viant/adminflow/service/validation"
	"go.uber.org/zap"
)

// Option customises the processor.
type Option func(*Service)

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithApprovalDAO sets the approval store implementation
func WithApprovalDAO(approvals dao.ApprovalDAO) Option {
	return func(s *Service) {
		s.approvals = approvals
	}
}

// WithValidator sets the validation pipeline
func WithValidator(validator *validation.Service) Option {
	return func(s *Service) {
		s.validator = validator
	}
}

// WithRiskEngine sets the risk engine
func WithRiskEngine(engine risk.Engine) Option {
	return func(s *Service) {
		s.risk = engine
	}
}

// WithRouter sets the routing engine
func WithRouter(router Router) Option {
	return func(s *Service) {
		s.router = router
	}
}

// WithExecutor sets the side-effect executor
func WithExecutor(executor *executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithBreakers sets the circuit breakers
func WithBreakers(breakers *breaker.Registry) Option {
	return func(s *Service) {
		s.breakers = breakers
	}
}

// WithPolicy sets the fallback threshold policy
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
