package event

import (
	"github.com/viant/adminflow/service/messaging/kafka"
	"github.com/viant/adminflow/service/messaging/memory"
	"go.uber.org/zap"
)

type Option func(s *Service)

// WithMemoryQueueConfig sets the memory queue configuration
func WithMemoryQueueConfig(config memory.Config) Option {
	return func(s *Service) {
		s.memoryConfig = &config
	}
}

// WithKafkaQueueConfig sets the kafka queue configuration
func WithKafkaQueueConfig(config kafka.Config) Option {
	return func(s *Service) {
		s.kafkaConfig = &config
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSource sets the service name stamped on every event context
func WithSource(name string) Option {
	return func(s *Service) {
		s.source = name
	}
}
