package directory

import (
	"context"
	"sync"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
)

type snapshotKey struct{}

type activity struct {
	counts []*dao.ApprovalCount
	open   []*model.ApprovalRequest
}

// snapshot memoizes the first successful read; failed reads are retried.
type snapshot struct {
	mux      sync.Mutex
	activity *activity
}

func (s *snapshot) load(ctx context.Context, read func(ctx context.Context) (*activity, error)) (*activity, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.activity != nil {
		return s.activity, nil
	}
	ret, err := read(ctx)
	if err != nil {
		return nil, err
	}
	s.activity = ret
	return ret, nil
}

// WithSnapshot returns a context under which Stats and AllStats share a
// single read of the store. Use it for the span of one command.
func WithSnapshot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(snapshotKey{}).(*snapshot); ok {
		return ctx
	}
	return context.WithValue(ctx, snapshotKey{}, &snapshot{})
}
