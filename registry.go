package echobus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coregx/echobus/model"
)

// Handler processes one decoded envelope.
//
// A nil return means success. Errors are routed by kind: wrap transient failures with
// AsRetryable or NewRetryableError, permanent ones with AsNonRetryable or
// NewNonRetryableError. Any other error is retried like a retryable one.
type Handler interface {
	Handle(ctx context.Context, env model.Envelope) error
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, env model.Envelope) error

// Handle calls f(ctx, env).
func (f HandlerFunc) Handle(ctx context.Context, env model.Envelope) error {
	return f(ctx, env)
}

// Registry maps topics to their handler. Bindings are made at startup and
// then only read, but the registry is safe for concurrent use either way.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Bind routes records of topic to h. Each topic can be bound once.
func (r *Registry) Bind(topic string, h Handler) error {
	if topic == "" {
		return NewError(ErrCodeValidation, "topic is required")
	}
	if h == nil {
		return NewError(ErrCodeValidation, fmt.Sprintf("handler for topic %s cannot be nil", topic))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[topic]; exists {
		return NewError(ErrCodeConfiguration, fmt.Sprintf("topic %s is already bound", topic))
	}
	r.handlers[topic] = h
	return nil
}

// Lookup returns the handler bound to topic.
func (r *Registry) Lookup(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[topic]
	return h, ok
}

// Topics returns the bound topics in lexical order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
