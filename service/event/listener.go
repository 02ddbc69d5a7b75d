package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	minConsumeBackoff = 50 * time.Millisecond
	maxConsumeBackoff = 5 * time.Second
)

// Handler processes one event; an error nacks the message.
type Handler[T any] func(ctx context.Context, event *Event[T]) error

type Listener[T any] struct {
	publisher  *Publisher[T]
	handler    Handler[T]
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       sync.WaitGroup
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewListener[T any](publisher *Publisher[T], handler Handler[T], logger *zap.Logger) *Listener[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener[T]{publisher: publisher, handler: handler, logger: logger,
		minBackoff: minConsumeBackoff, maxBackoff: maxConsumeBackoff}
}

// Stop cancels consumption and waits for the loop to exit.
func (l *Listener[T]) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.done.Wait()
}

func (l *Listener[T]) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done.Add(1)
	go func() {
		defer l.done.Done()
		backoff := l.minBackoff
		for {
			msg, err := l.publisher.Consume(ctx)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if err != nil {
				l.logger.Warn("failed to consume event", zap.Error(err), zap.Duration("backoff", backoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(2*backoff, l.maxBackoff)
				continue
			}
			backoff = l.minBackoff
			if msg == nil {
				continue
			}
			if err = l.handler(ctx, msg.T()); err != nil {
				l.logger.Warn("event handler failed", zap.Error(err))
				_ = msg.Nack(err)
				continue
			}
			if err = msg.Ack(); err != nil {
				l.logger.Warn("failed to ack event", zap.Error(err))
			}
		}
	}()
}
