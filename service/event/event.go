package event

import (
	"time"

	"github.com/viant/adminflow/model"
)

// Context identifies where an event came from.
type Context struct {
	Service  string `json:"service"`
	Method   string `json:"method,omitempty"`
	OutboxID string `json:"outboxId,omitempty"`
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}

// Approval is the envelope of a published approval event.
type Approval = Event[model.PublishedEvent]
