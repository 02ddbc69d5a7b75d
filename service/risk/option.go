package risk

import (
	"time"

	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/dao"
	"go.uber.org/zap"
)

type Option func(*Service)

// WithTimeout bounds scoring.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// WithClock sets the clock used for time of day and timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLocation sets the time zone of business hours.
func WithLocation(location *time.Location) Option {
	return func(s *Service) {
		s.location = location
	}
}

// WithPolicy sets the fallback policy.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithAssessmentDAO persists every assessment.
func WithAssessmentDAO(assessments dao.AssessmentDAO) Option {
	return func(s *Service) {
		s.assessments = assessments
	}
}

// WithExporter exports every assessment.
func WithExporter(exporter *Exporter) Option {
	return func(s *Service) {
		s.exporter = exporter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
