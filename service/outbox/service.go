package outbox

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/internal/metrics"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, outboxID string, event *model.PublishedEvent) error
}

// Config represents dispatcher configuration
type Config struct {
	// Workers bounds how many approvals are delivered concurrently
	Workers        int           `yaml:"workers" env:"WORKERS"`
	PollInterval   time.Duration `yaml:"pollInterval" env:"POLL_INTERVAL"`
	BatchSize      int           `yaml:"batchSize" env:"BATCH_SIZE"`
	MaxAttempts    int           `yaml:"maxAttempts" env:"MAX_ATTEMPTS"`
	RetryDelay     time.Duration `yaml:"retryDelay" env:"RETRY_DELAY"`
	MaxRetryDelay  time.Duration `yaml:"maxRetryDelay" env:"MAX_RETRY_DELAY"`
	// PublishTimeout bounds a single sink publish; a timed out publish is retried.
	PublishTimeout time.Duration `yaml:"publishTimeout" env:"PUBLISH_TIMEOUT"`
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		PollInterval:   500 * time.Millisecond,
		BatchSize:      100,
		MaxAttempts:    10,
		RetryDelay:     time.Second,
		MaxRetryDelay:  5 * time.Minute,
		PublishTimeout: 5 * time.Second,
	}
}

// Service drains the outbox into a Sink
type Service struct {
	config Config
	dao    dao.OutboxDAO
	sink   Sink
	clock  clock.Clock
	logger *zap.Logger

	mux     sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New creates a dispatcher
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig(), clock: clock.System(), logger: zap.NewNop()}
	for _, opt := range options {
		opt(s)
	}
	if s.dao == nil {
		return nil, fmt.Errorf("outbox dao is required")
	}
	if s.sink == nil {
		return nil, fmt.Errorf("outbox sink is required")
	}
	if s.config.Workers <= 0 {
		s.config.Workers = 1
	}
	defaults := DefaultConfig()
	if s.config.MaxAttempts <= 0 {
		s.config.MaxAttempts = defaults.MaxAttempts
	}
	if s.config.PollInterval <= 0 {
		s.config.PollInterval = defaults.PollInterval
	}
	if s.config.PublishTimeout <= 0 {
		s.config.PublishTimeout = defaults.PublishTimeout
	}
	return s, nil
}

// Start launches the poll loop
func (s *Service) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("outbox dispatcher already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Add(1)
	go s.run(ctx)
	return nil
}

// Shutdown stops the poll loop and waits for the in-flight batch
func (s *Service) Shutdown() {
	s.mux.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mux.Unlock()
	if cancel != nil {
		cancel()
	}
	s.running.Wait()
}

func (s *Service) run(ctx context.Context) {
	defer s.running.Done()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := s.Dispatch(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("outbox poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Dispatch delivers one batch of due messages and returns how many were
// delivered.
func (s *Service) Dispatch(ctx context.Context) (int, error) {
	now := s.clock.Now()
	pending, err := s.dao.Pending(ctx, now, s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	var order []string
	groups := map[string][]*model.OutboxMessage{}
	for _, message := range pending {
		if _, ok := groups[message.ApprovalID]; !ok {
			order = append(order, message.ApprovalID)
		}
		groups[message.ApprovalID] = append(groups[message.ApprovalID], message)
	}

	var delivered int
	var mux sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.Workers)
	for _, approvalID := range order {
		messages := groups[approvalID]
		group.Go(func() error {
			count, err := s.deliver(gctx, messages)
			mux.Lock()
			delivered += count
			mux.Unlock()
			return err
		})
	}
	return delivered, group.Wait()
}

// deliver publishes messages in order and stops at the first failure so a
// later event of the same approval never overtakes an earlier one.
func (s *Service) deliver(ctx context.Context, messages []*model.OutboxMessage) (int, error) {
	delivered := 0
	for _, message := range messages {
		if err := s.publish(ctx, message); err != nil {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			return delivered, s.fail(ctx, message, err)
		}
		at := s.clock.Now()
		if err := s.dao.MarkDispatched(ctx, message.ID, at); err != nil {
			return delivered, fmt.Errorf("failed to mark %s dispatched: %w", message.ID, err)
		}
		metrics.OutboxPublished.WithLabelValues("delivered").Inc()
		metrics.OutboxLag.Observe(at.Sub(message.CreatedAt).Seconds())
		delivered++
	}
	return delivered, nil
}

func (s *Service) publish(ctx context.Context, message *model.OutboxMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()
	return s.sink.Publish(ctx, message.ID, message.Event)
}

func (s *Service) fail(ctx context.Context, message *model.OutboxMessage, cause error) error {
	attempts := message.Attempts + 1
	deadLetter := attempts >= s.config.MaxAttempts
	next := s.clock.Now().Add(s.Backoff(attempts))
	fields := []zap.Field{
		zap.String("outbox_id", message.ID),
		zap.String("approval_id", message.ApprovalID),
		zap.Int("attempt", attempts),
		zap.Error(cause),
	}
	if deadLetter {
		metrics.OutboxPublished.WithLabelValues("dead_lettered").Inc()
		s.logger.Error("outbox message dead lettered", fields...)
	} else {
		metrics.OutboxPublished.WithLabelValues("failed").Inc()
		s.logger.Warn("outbox publish failed", append(fields, zap.Time("next_attempt_at", next))...)
	}
	if err := s.dao.MarkFailed(ctx, message.ID, cause.Error(), next, deadLetter); err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", message.ID, err)
	}
	return nil
}

// Backoff returns the delay before attempt+1: RetryDelay doubled per
// attempt, capped at MaxRetryDelay.
func (s *Service) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(s.config.RetryDelay) * math.Pow(2, float64(attempts-1))
	if s.config.MaxRetryDelay > 0 && delay > float64(s.config.MaxRetryDelay) {
		return s.config.MaxRetryDelay
	}
	return time.Duration(delay)
}
