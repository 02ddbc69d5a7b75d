// Package resource looks up snapshots of the resources governed by approvals.
package resource

import (
	"context"
	"fmt"

	"github.com/viant/adminflow/model"
	"github.com/viant/adminflow/service/dao"
	"github.com/viant/adminflow/service/dao/store"
)

// Lookup returns the current snapshot of a resource, or dao.ErrNotFound.
type Lookup interface {
	Resource(ctx context.Context, resourceType model.ResourceType, id string) (*model.Resource, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, resourceType model.ResourceType, id string) (*model.Resource, error)

func (f LookupFunc) Resource(ctx context.Context, resourceType model.ResourceType, id string) (*model.Resource, error) {
	return f(ctx, resourceType, id)
}

func keyOf(resourceType model.ResourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// Memory is an in-memory Lookup.
type Memory struct {
	store *store.MemoryStore[string, model.Resource]
}

// NewMemory creates a memory lookup seeded with resources.
func NewMemory(resources ...*model.Resource) *Memory {
	ret := &Memory{store: store.NewMemoryStore[string, model.Resource](func(r *model.Resource) string {
		return keyOf(r.Type, r.ID)
	})}
	for _, r := range resources {
		_ = ret.Put(context.Background(), r)
	}
	return ret
}

// Put stores a copy of r.
func (m *Memory) Put(ctx context.Context, r *model.Resource) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	clone := *r
	clone.Completed = append([]model.Action(nil), r.Completed...)
	return m.store.Save(ctx, &clone)
}

// MarkCompleted records that action took effect on the resource.
func (m *Memory) MarkCompleted(ctx context.Context, resourceType model.ResourceType, id string, action model.Action) error {
	r, err := m.Resource(ctx, resourceType, id)
	if err != nil {
		return err
	}
	if !r.HasCompleted(action) {
		r.Completed = append(r.Completed, action)
	}
	return m.Put(ctx, r)
}

func (m *Memory) Resource(ctx context.Context, resourceType model.ResourceType, id string) (*model.Resource, error) {
	r, err := m.store.Load(ctx, keyOf(resourceType, id))
	if err != nil {
		return nil, err
	}
	clone := *r
	clone.Completed = append([]model.Action(nil), r.Completed...)
	return &clone, nil
}
