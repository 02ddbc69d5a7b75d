package outbox

import (
	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/service/dao"
	"go.uber.org/zap"
)

type Option func(*Service)

// WithConfig sets the dispatcher configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithDAO sets the outbox store
func WithDAO(outbox dao.OutboxDAO) Option {
	return func(s *Service) {
		s.dao = outbox
	}
}

// WithSink sets the event sink
func WithSink(sink Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithClock sets the clock
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
