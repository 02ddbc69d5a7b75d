package cache

import (
	"context"
	"sync"
	"time"

	"github.com/viant/adminflow/internal/clock"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is a process local Cache.
type Memory struct {
	mux     sync.RWMutex
	entries map[string]*entry
	clock   clock.Clock
}

// NewMemory creates a memory cache; c defaults to the system clock.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.System()
	}
	return &Memory{entries: map[string]*entry{}, clock: c}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mux.RLock()
	item, ok := m.entries[key]
	m.mux.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !item.expires.IsZero() && !m.clock.Now().Before(item.expires) {
		m.mux.Lock()
		delete(m.entries, key)
		m.mux.Unlock()
		return nil, ErrMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Set stores value; a non positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := &entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expires = m.clock.Now().Add(ttl)
	}
	m.mux.Lock()
	m.entries[key] = item
	m.mux.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mux.Lock()
	delete(m.entries, key)
	m.mux.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.entries)
}
