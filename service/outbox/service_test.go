package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/adminflow/internal/clock"
	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao/memory"
)

type recordingSink struct {
	mu        sync.Mutex
	failUntil map[string]int
	calls     map[string]int
	delivered []string
}

func (r *recordingSink) Publish(_ context.Context, outboxID string, event *model.PublishedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[outboxID]++
	if r.calls[outboxID] <= r.failUntil[outboxID] {
		return errors.New("broker unavailable")
	}
	r.delivered = append(r.delivered, outboxID)
	return nil
}

func seed(t *testing.T, db *memory.Service, now time.Time, approvalID string, ids ...string) {
	var messages []*model.OutboxMessage
	for _, id := range ids {
		messages = append(messages, &model.OutboxMessage{ID: id, ApprovalID: approvalID, CreatedAt: now, NextAttemptAt: now,
			Event: &model.PublishedEvent{Name: model.EventApprovalProcessed, ApprovalID: approvalID}})
	}
	require.NoError(t, db.Create(context.Background(),
		&model.ApprovalRequest{ID: approvalID, Status: model.StatusPending, Version: 1, CreatedAt: now},
		&model.TransitionEvent{ApprovalID: approvalID, NewStatus: model.StatusPending, OccurredAt: now}, messages))
}

func TestService_Dispatch(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name          string
		failUntil     map[string]int
		maxAttempts   int
		expectCount   int
		expectOrder   []string
		expectPending int
		expectDead    []string
	}{
		{
			name:        "all delivered",
			expectCount: 3,
			expectOrder: []string{"a-1", "a-2", "b-1"},
		},
		{
			name:        "failure holds back later events of the same approval",
			failUntil:   map[string]int{"a-1": 1},
			maxAttempts: 5,
			expectCount: 1,
			expectOrder: []string{"b-1"},
		},
		{
			name:        "dead lettered after max attempts",
			failUntil:   map[string]int{"b-1": 10},
			maxAttempts: 1,
			expectCount: 2,
			expectOrder: []string{"a-1", "a-2"},
			expectDead:  []string{"b-1"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := memory.New()
			seed(t, db, now, "a", "a-1", "a-2")
			seed(t, db, now, "b", "b-1")
			sink := &recordingSink{failUntil: tc.failUntil}
			config := DefaultConfig()
			if tc.maxAttempts > 0 {
				config.MaxAttempts = tc.maxAttempts
			}
			srv, err := New(WithDAO(db), WithSink(sink), WithClock(clock.NewFixed(now)), WithConfig(config))
			require.NoError(t, err)

			count, err := srv.Dispatch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.expectCount, count)
			assert.ElementsMatch(t, tc.expectOrder, sink.delivered)

			var dead []string
			for _, message := range db.Outbox() {
				if message.DeadLettered {
					dead = append(dead, message.ID)
				}
			}
			assert.Equal(t, tc.expectDead, dead)
		})
	}
}

func TestService_RetryAfterBackoff(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	db := memory.New()
	seed(t, db, now, "a", "a-1", "a-2")
	sink := &recordingSink{failUntil: map[string]int{"a-1": 1}}
	fixed := clock.NewFixed(now)
	srv, err := New(WithDAO(db), WithSink(sink), WithClock(fixed))
	require.NoError(t, err)

	count, err := srv.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, _ = srv.Dispatch(context.Background())
	assert.Equal(t, 0, count, "not due before backoff elapses")

	fixed.Advance(srv.Backoff(1))
	count, err = srv.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"a-1", "a-2"}, sink.delivered)
}

func TestService_Backoff(t *testing.T) {
	srv, err := New(WithDAO(memory.New()), WithSink(&recordingSink{}),
		WithConfig(Config{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}))
	require.NoError(t, err)
	assert.Equal(t, time.Second, srv.Backoff(1))
	assert.Equal(t, 2*time.Second, srv.Backoff(2))
	assert.Equal(t, 4*time.Second, srv.Backoff(3))
	assert.Equal(t, 5*time.Second, srv.Backoff(4))
}

func TestService_StartShutdown(t *testing.T) {
	now := time.Now()
	db := memory.New()
	seed(t, db, now, "a", "a-1")
	sink := &recordingSink{}
	config := DefaultConfig()
	config.PollInterval = 5 * time.Millisecond
	srv, err := New(WithDAO(db), WithSink(sink), WithConfig(config))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	assert.Error(t, srv.Start(context.Background()))

	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.delivered) == 1
	}, time.Second, 5*time.Millisecond)
	srv.Shutdown()
}

// stalledSink never accepts a message, like a full queue nobody consumes.
type stalledSink struct{}

func (stalledSink) Publish(ctx context.Context, _ string, _ *model.PublishedEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestService_PublishTimeout(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	db := memory.New()
	seed(t, db, now, "a", "a-1", "a-2")
	config := DefaultConfig()
	config.PublishTimeout = 10 * time.Millisecond
	srv, err := New(WithDAO(db), WithSink(stalledSink{}), WithClock(clock.NewFixed(now)), WithConfig(config))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	count, err := srv.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	messages := db.Outbox()
	require.Len(t, messages, 2)
	assert.Nil(t, messages[0].DispatchedAt)
	assert.Equal(t, 1, messages[0].Attempts)
	assert.Contains(t, messages[0].LastError, context.DeadlineExceeded.Error())
	assert.True(t, messages[0].NextAttemptAt.After(now))
	assert.Equal(t, 0, messages[1].Attempts)
}

func TestNew_Defaults(t *testing.T) {
	srv, err := New(WithDAO(memory.New()), WithSink(&recordingSink{}), WithConfig(Config{Workers: 1, MaxAttempts: 1}))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().PollInterval, srv.config.PollInterval)
	assert.Equal(t, DefaultConfig().PublishTimeout, srv.config.PublishTimeout)

	require.NoError(t, srv.Start(context.Background()))
	srv.Shutdown()
}
