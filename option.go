package adminflow

import (
	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/analytics/cache"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/event"
	"github.com/viant/adminflow/service/executor"
	"github.com/viant/adminflow/service/outbox"
	"github.com/viant/adminflow/service/resource"
	"github.com/viant/adminflow/service/risk"
	"github.com/viant/adminflow/tracing"
	"go.uber.org/zap"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithConfig sets the configuration; DefaultConfig is used otherwise.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithStore sets the approval, event and outbox storage
func WithStore(store Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithResourceLookup sets the source of resource snapshots
func WithResourceLookup(lookup resource.Lookup) Option {
	return func(s *Service) {
		s.lookup = lookup
	}
}

// WithRoster sets the admin roster
func WithRoster(roster directory.Roster) Option {
	return func(s *Service) {
		s.roster = roster
	}
}

// WithExecutor registers the side effect of action
func WithExecutor(action model.Action, exec executor.Executor) Option {
	return func(s *Service) {
		s.executors[action] = exec
	}
}

// WithAssessmentDAO persists every risk assessment
func WithAssessmentDAO(assessments dao.AssessmentDAO) Option {
	return func(s *Service) {
		s.assessments = assessments
	}
}

// WithExporter exports every risk assessment as JSON
func WithExporter(exporter *risk.Exporter) Option {
	return func(s *Service) {
		s.exporter = exporter
	}
}

// WithCache sets the analytics cache
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithEventService sets the service published events are delivered to
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.eventService = service
	}
}

// WithSink replaces the event service with a custom outbox sink
func WithSink(sink outbox.Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithPolicy overrides the thresholds built from the configuration
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
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

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The function is
// safe to call multiple times, the first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
