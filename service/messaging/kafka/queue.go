package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viant/adminflow/service/messaging"
	"go.uber.org/zap"
)

const retriesHeader = "x-retries"

// Config configures a kafka backed queue.
type Config struct {
	Brokers    []string `json:"brokers,omitempty" yaml:"brokers,omitempty" env:"BROKERS" envSeparator:","`
	Topic      string   `json:"topic,omitempty" yaml:"topic,omitempty" env:"TOPIC"`
	GroupID    string   `json:"groupId,omitempty" yaml:"groupId,omitempty" env:"GROUP_ID"`
	DLQTopic   string   `json:"dlqTopic,omitempty" yaml:"dlqTopic,omitempty" env:"DLQ_TOPIC"`
	MaxRetries int      `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" env:"MAX_RETRIES"`
}

// DefaultConfig returns a standard configuration for a kafka queue
func DefaultConfig() Config {
	return Config{GroupID: "adminflow", MaxRetries: 3}
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option customises a Queue.
type Option[T any] func(q *Queue[T])

// WithKey sets the partition key of a payload; messages sharing a key keep
// their publication order.
func WithKey[T any](fn func(t *T) string) Option[T] {
	return func(q *Queue[T]) { q.key = fn }
}

// WithLogger sets the logger.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(q *Queue[T]) { q.logger = logger }
}

func withTransport[T any](w writer, r reader) Option[T] {
	return func(q *Queue[T]) { q.writer, q.reader = w, r }
}

// Queue implements messaging.Queue on a kafka topic. Nacked messages are
// republished with an incremented retry header and committed; messages
// over MaxRetries go to DLQTopic when set.
type Queue[T any] struct {
	config Config
	writer writer
	reader reader
	key    func(t *T) string
	logger *zap.Logger
}

// NewQueue creates a kafka queue.
func NewQueue[T any](config Config, options ...Option[T]) (*Queue[T], error) {
	ret := &Queue[T]{config: config, logger: zap.NewNop()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.writer == nil || ret.reader == nil {
		if len(config.Brokers) == 0 || config.Topic == "" {
			return nil, fmt.Errorf("kafka queue requires brokers and topic")
		}
		logf := kafka.LoggerFunc(func(msg string, args ...interface{}) {
			ret.logger.Debug(fmt.Sprintf(msg, args...))
		})
		ret.writer = &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			Logger:       logf,
		}
		ret.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers: config.Brokers,
			Topic:   config.Topic,
			GroupID: config.GroupID,
			Logger:  logf,
		})
	}
	return ret, nil
}

// Publish writes t as JSON to the topic.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("kafka queue: nil payload")
	}
	return q.write(ctx, q.config.Topic, t, 0)
}

func (q *Queue[T]) write(ctx context.Context, topic string, t *T, retries int) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := kafka.Message{
		Topic:   topic,
		Value:   value,
		Headers: []kafka.Header{{Key: retriesHeader, Value: []byte(strconv.Itoa(retries))}},
	}
	if q.key != nil {
		msg.Key = []byte(q.key(t))
	}
	if err = q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", topic, err)
	}
	return nil
}

// Consume fetches the next message of the consumer group.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	raw, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	ret := &Message[T]{queue: q, raw: raw, retries: retriesOf(raw)}
	if err = json.Unmarshal(raw.Value, &ret.payload); err != nil {
		q.logger.Warn("dropping undecodable message", zap.String("topic", raw.Topic), zap.Int64("offset", raw.Offset), zap.Error(err))
		_ = q.reader.CommitMessages(ctx, raw)
		return nil, fmt.Errorf("failed to unmarshal message at offset %d: %w", raw.Offset, err)
	}
	return ret, nil
}

// Close releases the writer and reader.
func (q *Queue[T]) Close() error {
	werr := q.writer.Close()
	if rerr := q.reader.Close(); rerr != nil {
		return rerr
	}
	return werr
}

func retriesOf(msg kafka.Message) int {
	for _, header := range msg.Headers {
		if header.Key == retriesHeader {
			if n, err := strconv.Atoi(string(header.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}

// Message is a kafka delivery.
type Message[T any] struct {
	queue     *Queue[T]
	raw       kafka.Message
	payload   T
	retries   int
	mu        sync.Mutex
	processed bool
}

// T returns the message payload
func (m *Message[T]) T() *T { return &m.payload }

// Retries returns the retry count carried by the message headers.
func (m *Message[T]) Retries() int { return m.retries }

// Ack commits the message offset.
func (m *Message[T]) Ack() error {
	if err := m.finish(); err != nil {
		return err
	}
	return m.queue.reader.CommitMessages(context.Background(), m.raw)
}

// Nack republishes the payload for a retry, or to the dead letter topic,
// then commits the original offset.
func (m *Message[T]) Nack(cause error) error {
	if err := m.finish(); err != nil {
		return err
	}
	ctx := context.Background()
	retries := m.retries + 1
	topic := m.queue.config.Topic
	if retries > m.queue.config.MaxRetries {
		topic = m.queue.config.DLQTopic
	}
	if topic != "" {
		if err := m.queue.write(ctx, topic, &m.payload, retries); err != nil {
			return err
		}
	}
	m.queue.logger.Info("message nacked", zap.String("topic", topic), zap.Int("retries", retries), zap.Error(cause))
	return m.queue.reader.CommitMessages(ctx, m.raw)
}

func (m *Message[T]) finish() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message at offset %d already processed", m.raw.Offset)
	}
	m.processed = true
	return nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
