package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID    string
	Count int
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue[testPayload](DefaultConfig())
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, &testPayload{ID: "p1", Count: 1}))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, "p1", message.T().ID)

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
	assert.Error(t, message.Nack(errors.New("late")))
	assert.Error(t, queue.Publish(ctx, nil))
}

func TestQueue_Nack(t *testing.T) {
	testCases := []struct {
		name       string
		maxRetries int
		deadLetter bool
		nacks      int
		expectDLQ  int
	}{
		{name: "redelivered within budget", maxRetries: 2, deadLetter: true, nacks: 2, expectDLQ: 0},
		{name: "dead lettered after budget", maxRetries: 1, deadLetter: true, nacks: 2, expectDLQ: 1},
		{name: "dropped without dlq", maxRetries: 0, deadLetter: false, nacks: 1, expectDLQ: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			queue := NewQueue[testPayload](Config{MaxRetries: tc.maxRetries, RetryDelay: time.Millisecond, DeadLetter: tc.deadLetter})
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, queue.Publish(ctx, &testPayload{ID: "p1"}))

			for i := 0; i < tc.nacks; i++ {
				message, err := queue.Consume(ctx)
				require.NoError(t, err)
				assert.Equal(t, i, message.(*Message[testPayload]).Retries())
				require.NoError(t, message.Nack(errors.New("boom")))
				queue.WaitRedeliveries()
			}
			assert.Equal(t, tc.expectDLQ, queue.DLQSize())
			if tc.expectDLQ > 0 {
				assert.Equal(t, "p1", queue.DeadLetters()[0].ID)
			}
		})
	}
}

func TestQueue_ConsumeCancelled(t *testing.T) {
	queue := NewQueue[testPayload](DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
