package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu        sync.Mutex
	written   []kafka.Message
	committed []kafka.Message
}

func (b *fakeBroker) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range msgs {
		msg.Offset = int64(len(b.written))
		b.written = append(b.written, msg)
	}
	return nil
}

func (b *fakeBroker) FetchMessage(ctx context.Context) (kafka.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range b.written {
		if !b.isCommitted(msg) {
			return msg, nil
		}
	}
	return kafka.Message{}, context.DeadlineExceeded
}

func (b *fakeBroker) isCommitted(msg kafka.Message) bool {
	for _, c := range b.committed {
		if c.Offset == msg.Offset {
			return true
		}
	}
	return false
}

func (b *fakeBroker) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = append(b.committed, msgs...)
	return nil
}

func (b *fakeBroker) Close() error { return nil }

type payload struct {
	ApprovalID string `json:"approvalId"`
}

func newTestQueue(t *testing.T, broker *fakeBroker, maxRetries int) *Queue[payload] {
	queue, err := NewQueue[payload](Config{Topic: "approvals", DLQTopic: "approvals.dlq", MaxRetries: maxRetries},
		withTransport[payload](broker, broker),
		WithKey(func(p *payload) string { return p.ApprovalID }))
	require.NoError(t, err)
	return queue
}

func TestQueue_PublishAck(t *testing.T) {
	broker := &fakeBroker{}
	queue := newTestQueue(t, broker, 1)
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &payload{ApprovalID: "a1"}))
	require.Len(t, broker.written, 1)
	assert.Equal(t, "a1", string(broker.written[0].Key))
	assert.Equal(t, "approvals", broker.written[0].Topic)

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", msg.T().ApprovalID)
	require.NoError(t, msg.Ack())
	assert.Error(t, msg.Ack())
	assert.Len(t, broker.committed, 1)
}

func TestQueue_Nack(t *testing.T) {
	broker := &fakeBroker{}
	queue := newTestQueue(t, broker, 1)
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &payload{ApprovalID: "a1"}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Nack(errors.New("boom")))
	require.Len(t, broker.written, 2)
	assert.Equal(t, "approvals", broker.written[1].Topic)
	assert.Equal(t, 1, retriesOf(broker.written[1]))

	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, msg.(*Message[payload]).Retries())
	require.NoError(t, msg.Nack(errors.New("boom")))
	require.Len(t, broker.written, 3)
	assert.Equal(t, "approvals.dlq", broker.written[2].Topic)
}

func TestNewQueue_RequiresBrokers(t *testing.T) {
	_, err := NewQueue[payload](Config{})
	assert.Error(t, err)
}
