package adminflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/event"
	"github.com/viant/adminflow/service/outbox"
)

// Runtime runs the background side of the engine: the outbox dispatcher and,
// when events go to the built-in event service, its consumer.
type Runtime struct {
	dispatcher   *outbox.Service
	eventService *event.Service
	store        Store

	mux sync.Mutex
	// unconsumed is set while the built-in memory event queue has no subscriber.
	unconsumed bool
}

// ErrNoSubscriber is returned when outbox messages would be delivered to the
// in-memory event queue that nothing consumes.
var ErrNoSubscriber = errors.New("in-memory events have no subscriber: call Subscribe or configure a kafka transport")

// Start launches the outbox dispatcher
func (r *Runtime) Start(ctx context.Context) error {
	if err := r.consumed(); err != nil {
		return err
	}
	return r.dispatcher.Start(ctx)
}

func (r *Runtime) consumed() error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.unconsumed {
		return ErrNoSubscriber
	}
	return nil
}

// Shutdown stops the dispatcher, then the event consumer
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.dispatcher.Shutdown()
	if r.eventService != nil {
		return r.eventService.Close()
	}
	return nil
}

// Dispatch runs a single outbox pass and returns the number of delivered
// messages.
func (r *Runtime) Dispatch(ctx context.Context) (int, error) {
	if err := r.consumed(); err != nil {
		return 0, err
	}
	return r.dispatcher.Dispatch(ctx)
}

// Subscribe consumes published approval events with handler. It replaces any
// previous subscriber.
func (r *Runtime) Subscribe(ctx context.Context, handler event.Handler[model.PublishedEvent]) error {
	if r.eventService == nil {
		return fmt.Errorf("events are delivered to a custom sink")
	}
	r.eventService.SetListener(ctx, handler)
	r.mux.Lock()
	r.unconsumed = false
	r.mux.Unlock()
	return nil
}

// WaitForStatus polls the request until it reaches one of statuses or the
// timeout elapses.
func (r *Runtime) WaitForStatus(ctx context.Context, approvalID string, timeout time.Duration, statuses ...model.Status) (*model.State, error) {
	deadline := time.Now().Add(timeout)
	for {
		request, err := r.store.Load(ctx, approvalID)
		if err != nil {
			return nil, err
		}
		for _, status := range statuses {
			if request.Status == status {
				return request.State(), nil
			}
		}
		if time.Now().After(deadline) {
			return request.State(), fmt.Errorf("timeout waiting for approval %q", approvalID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
