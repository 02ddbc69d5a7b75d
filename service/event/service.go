package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/messaging"
	"github.com/viant/adminflow/service/messaging/kafka"
	"github.com/viant/adminflow/service/messaging/memory"
	"go.uber.org/zap"
)

// Service publishes approval events onto the configured queue vendor.
type Service struct {
	publisher    *Publisher[model.PublishedEvent]
	listener     *Listener[model.PublishedEvent]
	queue        messaging.Queue[Approval]
	mux          sync.Mutex
	queueVendor  messaging.Vendor
	memoryConfig *memory.Config
	kafkaConfig  *kafka.Config
	logger       *zap.Logger
	source       string
}

func New(queueVendor messaging.Vendor, opts ...Option) (*Service, error) {
	ret := &Service{queueVendor: queueVendor, logger: zap.NewNop(), source: "adminflow"}
	for _, opt := range opts {
		opt(ret)
	}
	queue, err := ret.queueOf()
	if err != nil {
		return nil, err
	}
	ret.queue = queue
	ret.publisher = NewPublisher[model.PublishedEvent](queue)
	return ret, nil
}

func (s *Service) queueOf() (messaging.Queue[Approval], error) {
	switch s.queueVendor {
	case messaging.VendorMemory:
		config := memory.DefaultConfig()
		if s.memoryConfig != nil {
			config = *s.memoryConfig
		}
		return memory.NewQueue[Approval](config), nil
	case messaging.VendorKafka:
		if s.kafkaConfig == nil {
			return nil, fmt.Errorf("kafka queue vendor requires kafka config")
		}
		return kafka.NewQueue[Approval](*s.kafkaConfig,
			kafka.WithLogger[Approval](s.logger),
			kafka.WithKey(func(e *Approval) string { return e.Data.ApprovalID }))
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.queueVendor)
}

// Queue returns the underlying queue.
func (s *Service) Queue() messaging.Queue[Approval] {
	return s.queue
}

// Publish wraps published into an envelope and enqueues it.
func (s *Service) Publish(ctx context.Context, outboxID string, published *model.PublishedEvent) error {
	if published == nil {
		return fmt.Errorf("published event was nil")
	}
	envelope := NewEvent(&Context{Service: s.source, Method: published.Name, OutboxID: outboxID}, *published)
	return s.publisher.Publish(ctx, envelope)
}

// SetListener replaces the consumer of published events.
func (s *Service) SetListener(ctx context.Context, handler Handler[model.PublishedEvent]) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener(s.publisher, handler, s.logger)
	s.listener.Start(ctx)
}

// Close stops the listener and releases the queue.
func (s *Service) Close() error {
	s.mux.Lock()
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
	s.mux.Unlock()
	if closer, ok := s.queue.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
