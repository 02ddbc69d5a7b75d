package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/adminflow/model"
	"go.uber.org/zap"
)

// Request is the input of a side-effect executor.
type Request struct {
	ApprovalID    string             `json:"approvalId"`
	AdminID       string             `json:"adminId"`
	ResourceType  model.ResourceType `json:"resourceType"`
	ResourceID    string             `json:"resourceId"`
	Action        model.Action       `json:"action"`
	AdminApproved bool               `json:"adminApproved"`
	// IdempotencyKey is stable across retries of the same approval.
	IdempotencyKey string `json:"idempotencyKey"`
}

// NewRequest creates the executor input for an approved request.
func NewRequest(approval *model.ApprovalRequest) *Request {
	return &Request{
		ApprovalID:     approval.ID,
		AdminID:        approval.Metadata.String(model.MetaAdminID),
		ResourceType:   approval.ResourceType,
		ResourceID:     approval.ResourceID,
		Action:         approval.Action,
		AdminApproved:  approval.Status == model.StatusApproved,
		IdempotencyKey: fmt.Sprintf("%s:%d", approval.ID, approval.Version),
	}
}

// Executor carries out an approved action.
type Executor interface {
	Execute(ctx context.Context, request *Request) error
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, request *Request) error

func (f Func) Execute(ctx context.Context, request *Request) error { return f(ctx, request) }

// Listener is invoked once an executor completes, with its error if any.
type Listener func(request *Request, err error)

// Option is used to customise the registry.
type Option func(*Service)

// WithExecutor registers executor for action.
func WithExecutor(action model.Action, executor Executor) Option {
	return func(s *Service) {
		s.executors[action] = executor
	}
}

// WithListener sets the completion listener.
func WithListener(listener Listener) Option {
	return func(s *Service) {
		s.listener = listener
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service dispatches approved requests to the executor of their action.
type Service struct {
	mux       sync.RWMutex
	executors map[model.Action]Executor
	listener  Listener
	logger    *zap.Logger
}

// New creates an executor registry.
func New(options ...Option) *Service {
	ret := &Service{executors: map[model.Action]Executor{}, logger: zap.NewNop()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Register adds or replaces the executor of action.
func (s *Service) Register(action model.Action, executor Executor) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.executors[action] = executor
}

// Execute runs the executor registered for request.Action.
func (s *Service) Execute(ctx context.Context, request *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor %s panicked: %v", request.Action, r)
		}
		if s.listener != nil {
			s.listener(request, err)
		}
	}()
	if !request.AdminApproved {
		return ErrNotApproved
	}
	s.mux.RLock()
	executor, ok := s.executors[request.Action]
	s.mux.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutorNotFound, request.Action)
	}
	s.logger.Debug("executing approved action",
		zap.String("approval_id", request.ApprovalID),
		zap.String("action", string(request.Action)),
		zap.String("idempotency_key", request.IdempotencyKey))
	return executor.Execute(ctx, request)
}
