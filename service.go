package adminflow

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/internal/logging"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/service/analytics"
	"github.com/viant/adminflow/service/analytics/cache"
	"github.com/viant/adminflow/service/breaker"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/dao/memory"
	"github.com/viant/adminflow/service/dao/store"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/event"
	"github.com/viant/adminflow/service/eventstore"
	"github.com/viant/adminflow/service/executor"
	"github.com/viant/adminflow/service/messaging"
	"github.com/viant/adminflow/service/outbox"
	"github.com/viant/adminflow/service/processor"
	"github.com/viant/adminflow/service/resource"
	"github.com/viant/adminflow/service/risk"
	"github.com/viant/adminflow/service/routing"
	"github.com/viant/adminflow/service/validation"
	"go.uber.org/zap"
)

// Store persists requests, their transition log and the outbox in one
// transactional unit.
type Store interface {
	dao.ApprovalDAO
	dao.EventDAO
	dao.OutboxDAO
}

// completer is implemented by resource stores that can record an action as
// taken, for example resource.Memory.
type completer interface {
	MarkCompleted(ctx context.Context, resourceType model.ResourceType, id string, action model.Action) error
}

var actions = []model.Action{
	model.ActionEscrowRelease,
	model.ActionEscrowRefund,
	model.ActionOrderFinalization,
	model.ActionDisputeResolution,
}

// Service is the approval engine façade
type Service struct {
	config       *Config
	store        Store
	lookup       resource.Lookup
	roster       directory.Roster
	executors    map[model.Action]executor.Executor
	assessments  dao.AssessmentDAO
	exporter     *risk.Exporter
	cache        cache.Cache
	eventService *event.Service
	sink         outbox.Sink
	policy       *policy.Policy
	clock        clock.Clock
	logger       *zap.Logger
	// memoryEvents is set when the built-in memory event service is used.
	memoryEvents bool

	directory *directory.Service
	processor *processor.Service
	events    *eventstore.Service
	analytics *analytics.Service
	runtime   *Runtime
}

// New wires the engine. Components not supplied by options default to their
// in-memory implementations.
func New(options ...Option) (*Service, error) {
	ret := &Service{executors: map[model.Action]executor.Executor{}}
	for _, option := range options {
		option(ret)
	}
	if err := ret.ensureBaseSetup(); err != nil {
		return nil, err
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) ensureBaseSetup() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.policy == nil {
		p, err := policy.FromConfig(&s.config.Risk)
		if err != nil {
			return err
		}
		s.policy = p
	}
	s.logger = logging.OrNop(s.logger)
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.store == nil {
		s.store = memory.New()
	}
	if s.lookup == nil {
		s.lookup = resource.NewMemory()
	}
	if s.roster == nil {
		s.roster = directory.NewMemoryRoster()
	}
	if s.cache == nil {
		s.cache = cache.NewMemory(s.clock)
	}
	if s.assessments == nil {
		s.assessments = store.NewMemoryStore[string, model.RiskAssessment](func(r *model.RiskAssessment) string { return r.ID })
	}
	if s.sink == nil {
		if s.eventService == nil {
			service, err := event.New(messaging.VendorMemory, event.WithLogger(s.logger))
			if err != nil {
				return err
			}
			s.eventService = service
			s.memoryEvents = true
		}
		s.sink = s.eventService
	}
	if len(s.executors) == 0 {
		if store, ok := s.lookup.(completer); ok {
			for _, action := range actions {
				s.executors[action] = markCompleted(store)
			}
		}
	}
	return nil
}

func (s *Service) init() error {
	s.directory = directory.New(s.roster, s.store, s.store)

	riskOptions := []risk.Option{
		risk.WithTimeout(s.config.Processor.RiskTimeout),
		risk.WithPolicy(s.policy),
		risk.WithClock(s.clock),
		risk.WithLogger(s.logger),
		risk.WithAssessmentDAO(s.assessments),
	}
	if s.exporter != nil {
		riskOptions = append(riskOptions, risk.WithExporter(s.exporter))
	}
	validator := validation.New(s.lookup,
		validation.WithWorkers(s.config.Processor.ValidationWorkers),
		validation.WithChecks(
			validation.AdminPermission(s.roster),
			validation.ResourceState(),
			validation.BusinessRules(),
			validation.RiskThreshold(s.policy),
		))
	var executorOptions []executor.Option
	for action, exec := range s.executors {
		executorOptions = append(executorOptions, executor.WithExecutor(action, exec))
	}
	executorOptions = append(executorOptions, executor.WithLogger(s.logger))

	var err error
	s.processor, err = processor.New(
		processor.WithConfig(s.config.Processor),
		processor.WithApprovalDAO(s.store),
		processor.WithValidator(validator),
		processor.WithRiskEngine(risk.New(s.lookup, s.directory, riskOptions...)),
		processor.WithRouter(routing.New(s.directory, routing.WithPolicy(s.policy), routing.WithLogger(s.logger))),
		processor.WithExecutor(executor.New(executorOptions...)),
		processor.WithBreakers(breaker.New(s.config.Breaker, breaker.WithLogger(s.logger))),
		processor.WithPolicy(s.policy),
		processor.WithClock(s.clock),
		processor.WithLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}
	s.events = eventstore.New(s.store, s.store)
	s.analytics = analytics.New(s.store, s.store,
		analytics.WithConfig(s.config.Analytics),
		analytics.WithCache(s.cache),
		analytics.WithLogger(s.logger))

	dispatcher, err := outbox.New(
		outbox.WithConfig(s.config.Outbox),
		outbox.WithDAO(s.store),
		outbox.WithSink(s.sink),
		outbox.WithClock(s.clock),
		outbox.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("failed to create outbox dispatcher: %w", err)
	}
	s.runtime = &Runtime{dispatcher: dispatcher, eventService: s.eventService, store: s.store, unconsumed: s.memoryEvents}
	return nil
}

func markCompleted(store completer) executor.Executor {
	return executor.Func(func(ctx context.Context, request *executor.Request) error {
		return store.MarkCompleted(ctx, request.ResourceType, request.ResourceID, request.Action)
	})
}

// Submit opens a new approval request
func (s *Service) Submit(ctx context.Context, command *model.Command) (*processor.Result, error) {
	return s.processor.Submit(ctx, command)
}

// Process moves an existing request to command.TargetStatus
func (s *Service) Process(ctx context.Context, command *model.Command) (*processor.Result, error) {
	return s.processor.Process(ctx, command)
}

// State returns the current state of a request
func (s *Service) State(ctx context.Context, approvalID string) (*model.State, error) {
	request, err := s.store.Load(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	return request.State(), nil
}

// Requests lists stored requests matching parameters
func (s *Service) Requests(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRequest, error) {
	return s.store.List(ctx, parameters...)
}

// History returns the transition log of a request
func (s *Service) History(ctx context.Context, approvalID string) ([]*model.TransitionEvent, error) {
	return s.events.Events(ctx, approvalID)
}

// Replay rebuilds a request from its transition log
func (s *Service) Replay(ctx context.Context, approvalID string) (*model.ApprovalRequest, error) {
	return s.events.Replay(ctx, approvalID)
}

// Verify checks that the stored request matches its replayed log
func (s *Service) Verify(ctx context.Context, approvalID string) error {
	return s.events.Verify(ctx, approvalID)
}

// Report returns the analytics of [from, to)
func (s *Service) Report(ctx context.Context, from, to time.Time) (*analytics.Report, error) {
	return s.analytics.Report(ctx, from, to)
}

// Analytics returns the analytics service
func (s *Service) Analytics() *analytics.Service {
	return s.analytics
}

// Assessments returns the persisted risk assessments
func (s *Service) Assessments() dao.AssessmentDAO {
	return s.assessments
}

// Directory returns the admin directory
func (s *Service) Directory() *directory.Service {
	return s.directory
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Runtime returns the background runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}
