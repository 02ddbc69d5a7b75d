package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/internal/idgen"
	"github.com/viant/adminflow/internal/metrics"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/policy"
	"github.com/viant/adminflow/runtime/transition"
	"github.com/viant/adminflow/service/breaker"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/directory"
	"github.com/viant/adminflow/service/executor"
	"github.com/viant/adminflow/service/risk"
	"github.com/viant/adminflow/service/validation"
	"github.com/viant/adminflow/tracing"
	"go.uber.org/zap"
)

// Config represents processor configuration
type Config struct {
	// ValidationWorkers bounds concurrently running validation checks.
	ValidationWorkers int `json:"validationWorkers,omitempty" yaml:"validationWorkers,omitempty" env:"VALIDATION_WORKERS"`
	// RiskTimeout bounds risk scoring before the fallback score is used.
	RiskTimeout time.Duration `json:"riskTimeout,omitempty" yaml:"riskTimeout,omitempty" env:"RISK_TIMEOUT"`
	// CommandTimeout bounds a whole command; zero disables it.
	CommandTimeout time.Duration `json:"commandTimeout,omitempty" yaml:"commandTimeout,omitempty" env:"COMMAND_TIMEOUT"`
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		ValidationWorkers: 4,
		RiskTimeout:       risk.DefaultTimeout,
		CommandTimeout:    10 * time.Second,
	}
}

// Operation categories guarded by their own circuit breaker.
const (
	OperationSubmit = "submit"
)

// OperationOf returns the breaker category of command.
func OperationOf(command *model.Command) string {
	if command == nil || command.TargetStatus == "" {
		return OperationSubmit
	}
	return string(command.TargetStatus)
}

// Router selects the routing of an assessed command.
type Router interface {
	Route(ctx context.Context, action model.Action, assessment *model.RiskAssessment) (*model.Routing, error)
}

// Result is the outcome of a committed command.
type Result struct {
	State      *model.State
	Assessment *model.RiskAssessment
	Routing    *model.Routing
	// SideEffectErr reports a failed executor; the transition stays committed.
	SideEffectErr error
}

// Service processes approval commands
type Service struct {
	config    Config
	approvals dao.ApprovalDAO
	validator *validation.Service
	risk      risk.Engine
	router    Router
	executor  *executor.Service
	breakers  *breaker.Registry
	policy    *policy.Policy
	clock     clock.Clock
	logger    *zap.Logger
}

// New creates a processor
func New(options ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		policy: policy.Default(),
		clock:  clock.System(),
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.approvals == nil {
		return nil, fmt.Errorf("approvalDAO is required")
	}
	if s.validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if s.risk == nil {
		return nil, fmt.Errorf("risk engine is required")
	}
	if s.router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if s.executor == nil {
		s.executor = executor.New(executor.WithLogger(s.logger))
	}
	if s.breakers == nil {
		s.breakers = breaker.New(breaker.DefaultConfig(), breaker.WithLogger(s.logger))
	}
	return s, nil
}

// Submit opens a new pending approval request.
func (s *Service) Submit(ctx context.Context, command *model.Command) (result *Result, err error) {
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "processor.Submit", "INTERNAL")
	defer func() {
		tracing.EndSpan(span, err)
		s.observe(OperationSubmit, started, err)
	}()
	if err = command.Validate(); err != nil {
		return nil, err
	}
	if command.ApprovalID != "" {
		return nil, model.NewValidationError("approval_id", "a new request must not carry approval_id")
	}
	if command.TargetStatus != "" && command.TargetStatus != model.StatusPending {
		return nil, model.NewValidationError("target_status", "a new request starts pending")
	}
	span.WithAttributes(map[string]string{"resource_type": string(command.ResourceType), "action": string(command.Action)})
	ctx, cancel := s.withTimeout(directory.WithSnapshot(ctx))
	defer cancel()
	return breaker.Execute(s.breakers, OperationSubmit, func() (*Result, error) {
		return s.submit(ctx, command)
	})
}

func (s *Service) submit(ctx context.Context, command *model.Command) (*Result, error) {
	approvalID := idgen.New()
	subject := risk.SubjectOf(command)
	subject.ApprovalID = approvalID
	assessment, err := s.validate(ctx, command, subject)
	if err != nil {
		return nil, err
	}
	routing := s.route(ctx, command, assessment)

	now := s.now()
	metadata := s.metadata(command, assessment, routing)
	request := &model.ApprovalRequest{
		ID:           approvalID,
		AdminID:      command.AdminID,
		ResourceType: command.ResourceType,
		ResourceID:   command.ResourceID,
		Action:       command.Action,
		Status:       model.StatusPending,
		Reason:       command.Reason,
		Metadata:     metadata,
		CreatedAt:    now,
		Version:      1,
	}
	event := &model.TransitionEvent{
		ID:           idgen.NewSortable(now),
		ApprovalID:   approvalID,
		Version:      1,
		NewStatus:    model.StatusPending,
		AdminID:      command.AdminID,
		ResourceType: command.ResourceType,
		ResourceID:   command.ResourceID,
		Action:       command.Action,
		Reason:       command.Reason,
		Metadata:     metadata.Clone(),
		OccurredAt:   now,
	}
	if err = s.approvals.Create(ctx, request, event, nil); err != nil {
		return nil, s.storeError("create", err)
	}
	s.logger.Info("approval request submitted",
		zap.String("approval_id", approvalID),
		zap.String("admin_id", command.AdminID),
		zap.String("resource_type", string(command.ResourceType)),
		zap.String("resource_id", command.ResourceID),
		zap.String("strategy", string(routing.Strategy)))
	return &Result{State: request.State(), Assessment: assessment, Routing: routing}, nil
}

// Process transitions an existing request to command.TargetStatus.
func (s *Service) Process(ctx context.Context, command *model.Command) (result *Result, err error) {
	started := time.Now()
	operation := OperationOf(command)
	ctx, span := tracing.StartSpan(ctx, "processor.Process", "INTERNAL")
	defer func() {
		tracing.EndSpan(span, err)
		s.observe(operation, started, err)
	}()
	if err = command.ValidateTransition(); err != nil {
		return nil, err
	}
	span.WithAttributes(map[string]string{
		"approval_id":   command.ApprovalID,
		"target_status": string(command.TargetStatus),
		"action":        string(command.Action),
	})
	ctx, cancel := s.withTimeout(directory.WithSnapshot(ctx))
	defer cancel()
	return breaker.Execute(s.breakers, operation, func() (*Result, error) {
		return s.process(ctx, command)
	})
}

func (s *Service) process(ctx context.Context, command *model.Command) (*Result, error) {
	assessment, err := s.validate(ctx, command, risk.SubjectOf(command))
	if err != nil {
		return nil, err
	}

	current, err := s.approvals.Load(ctx, command.ApprovalID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, model.NewValidationError("approval_id", "approval "+command.ApprovalID+" not found")
		}
		return nil, s.storeError("load", err)
	}
	if err = matches(command, current); err != nil {
		return nil, err
	}
	if command.ExpectedVersion > 0 && command.ExpectedVersion != current.Version {
		return nil, &model.ConcurrencyConflictError{ApprovalID: current.ID, Expected: command.ExpectedVersion, Actual: current.Version}
	}

	routing := s.route(ctx, command, assessment)
	if command.TargetStatus == model.StatusApproved && routing.RequiresEscalation && current.Status != model.StatusEscalated {
		return nil, model.NewValidationError("escalation", fmt.Sprintf("approval %s requires escalation (risk %.3f, high value %v)", current.ID, assessment.Score, assessment.HighValue))
	}

	now := s.now()
	in := transition.Input{Reason: command.Reason, Metadata: s.metadata(command, assessment, routing), At: now}
	next, err := transition.Transition(current, command.TargetStatus, command.AdminID, in)
	if err != nil {
		return nil, err
	}
	event := &model.TransitionEvent{
		ID:             idgen.NewSortable(now),
		ApprovalID:     current.ID,
		Version:        next.Version,
		PreviousStatus: current.Status,
		NewStatus:      next.Status,
		AdminID:        command.AdminID,
		ResourceType:   current.ResourceType,
		ResourceID:     current.ResourceID,
		Action:         current.Action,
		Reason:         command.Reason,
		Metadata:       in.Metadata,
		OccurredAt:     now,
	}
	commit := &dao.Commit{Request: next, ExpectedVersion: current.Version, Event: event, Outbox: outbox(event)}
	if err = s.approvals.Commit(ctx, commit); err != nil {
		if errors.Is(err, model.ErrConcurrencyConflict) {
			s.logger.Info("approval commit conflict",
				zap.String("approval_id", current.ID), zap.Int("version", current.Version), zap.Error(err))
			return nil, err
		}
		return nil, s.storeError("commit", err)
	}
	s.logger.Info("approval transitioned",
		zap.String("approval_id", next.ID),
		zap.String("admin_id", command.AdminID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
		zap.Int("version", next.Version))

	result := &Result{State: next.State(), Assessment: assessment, Routing: routing}
	if next.Status == model.StatusApproved {
		result.SideEffectErr = s.execute(ctx, next)
	}
	return result, nil
}

// validate runs the pipeline while the risk engine scores subject; both are
// awaited.
func (s *Service) validate(ctx context.Context, command *model.Command, subject *risk.Subject) (*model.RiskAssessment, error) {
	pending := s.assess(ctx, subject)
	outcome := s.validator.Run(ctx, &validation.Input{Command: command, Risk: pending.Wait})
	assessment, riskErr := pending.Wait(ctx)
	if err := outcome.Err(); err != nil {
		s.logger.Debug("command failed validation",
			zap.String("approval_id", command.ApprovalID),
			zap.String("admin_id", command.AdminID),
			zap.String("failures", outcome.Summary()))
		return nil, err
	}
	if riskErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewDependencyUnavailable("risk engine", riskErr)
	}
	return assessment, nil
}

type future struct {
	done       chan struct{}
	assessment *model.RiskAssessment
	err        error
}

// Wait blocks until the assessment is ready or ctx is done.
func (f *future) Wait(ctx context.Context) (*model.RiskAssessment, error) {
	select {
	case <-f.done:
		return f.assessment, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) assess(ctx context.Context, subject *risk.Subject) *future {
	ret := &future{done: make(chan struct{})}
	go func() {
		defer close(ret.done)
		ret.assessment, ret.err = s.risk.Assess(ctx, subject)
	}()
	return ret
}

func (s *Service) route(ctx context.Context, command *model.Command, assessment *model.RiskAssessment) *model.Routing {
	routing, err := s.router.Route(ctx, command.Action, assessment)
	if err != nil {
		s.logger.Warn("routing without admin assignment",
			zap.String("approval_id", command.ApprovalID), zap.Error(err))
	}
	if routing == nil {
		p := policy.Resolve(ctx, s.policy)
		highValue := assessment.HighValue
		routing = &model.Routing{Strategy: model.StrategyStandard, RequiresEscalation: p.RequiresAdditionalApproval(assessment.Score, highValue)}
		if routing.RequiresEscalation {
			routing.Strategy = model.StrategyEscalated
		}
	}
	return routing
}

func (s *Service) metadata(command *model.Command, assessment *model.RiskAssessment, routing *model.Routing) model.Metadata {
	ret := model.Metadata{}.Merge(command.Metadata).Merge(command.ActorMetadata())
	ret[model.MetaAction] = string(command.Action)
	if command.Reason != "" {
		ret[model.MetaReason] = command.Reason
	}
	ret[model.MetaRiskAssessment] = assessment
	ret[model.MetaRouting] = routing
	return ret
}

func (s *Service) execute(ctx context.Context, approval *model.ApprovalRequest) error {
	request := executor.NewRequest(approval)
	err := s.executor.Execute(ctx, request)
	if err != nil {
		s.logger.Warn("side effect failed",
			zap.String("approval_id", approval.ID),
			zap.String("action", string(approval.Action)),
			zap.String("idempotency_key", request.IdempotencyKey),
			zap.Error(err))
	}
	return err
}

func (s *Service) storeError(op string, err error) error {
	var unavailable *model.DependencyUnavailableError
	if errors.As(err, &unavailable) {
		s.logger.Error("approval store unavailable", zap.String("operation", op), zap.Error(err))
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("failed to %s approval: %w", op, err)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.CommandTimeout)
}

// now is truncated to what every store can represent.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *Service) observe(operation string, started time.Time, err error) {
	metrics.CommandsTotal.WithLabelValues(operation, Outcome(err)).Inc()
	metrics.CommandDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Outcome returns the metrics label of err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, model.ErrValidation):
		return metrics.OutcomeValidation
	case errors.Is(err, model.ErrInvalidTransition):
		return metrics.OutcomeTransition
	case errors.Is(err, model.ErrConcurrencyConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, model.ErrDependencyUnavailable):
		return metrics.OutcomeUnavailable
	}
	return metrics.OutcomeError
}

func matches(command *model.Command, current *model.ApprovalRequest) error {
	if command.ResourceType != current.ResourceType || command.ResourceID != current.ResourceID || command.Action != current.Action {
		return model.NewValidationError("command", fmt.Sprintf("command targets %s %s/%s, approval %s governs %s %s/%s",
			command.Action, command.ResourceType, command.ResourceID,
			current.ID, current.Action, current.ResourceType, current.ResourceID))
	}
	return nil
}

// outbox returns the messages published for event: the generic processed
// event always, the resource specific one on approval.
func outbox(event *model.TransitionEvent) []*model.OutboxMessage {
	names := []string{model.EventApprovalProcessed}
	if event.NewStatus == model.StatusApproved {
		if name := model.ApprovedEventName(event.ResourceType); name != "" {
			names = append(names, name)
		}
	}
	ret := make([]*model.OutboxMessage, 0, len(names))
	for _, name := range names {
		ret = append(ret, &model.OutboxMessage{
			ID:         idgen.NewSortable(event.OccurredAt),
			ApprovalID: event.ApprovalID,
			Event: &model.PublishedEvent{
				Name:         name,
				ApprovalID:   event.ApprovalID,
				OldStatus:    event.PreviousStatus,
				NewStatus:    event.NewStatus,
				AdminID:      event.AdminID,
				ResourceType: event.ResourceType,
				ResourceID:   event.ResourceID,
				Action:       event.Action,
				Timestamp:    event.OccurredAt,
			},
			CreatedAt:     event.OccurredAt,
			NextAttemptAt: event.OccurredAt,
		})
	}
	return ret
}
