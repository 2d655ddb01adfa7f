package jobcore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is the normalized shape every registered handler is reduced to:
// an opaque, possibly-nil argument payload in, a JobExecutionResult (or a Go
// error for an unhandled exception) out. RegisterTyped builds one of these
// from a typed callback and a JSON deserializer.
type HandlerFunc func(ctx context.Context, arguments *string) (JobExecutionResult, error)

// HandlerRegistry maps job type_name identifiers to the callable that
// processes payloads of that type. It is populated once at startup and
// read-only thereafter.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewHandlerRegistry builds an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]HandlerFunc)}
}

// Register associates typeName with handle, replacing any prior registration.
func (r *HandlerRegistry) Register(typeName string, handle HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typeName] = handle
}

// Lookup returns the handler registered for typeName, if any.
func (r *HandlerRegistry) Lookup(typeName string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typeName]
	return h, ok
}

// RegisterTyped registers a typed handler for typeName on registry. The
// returned HandlerFunc JSON-decodes the opaque argument string into T before
// calling fn; a payload that doesn't decode into T produces a non-retryable
// JobExecutionResult whose ErrorMessage starts with ErrDeserialization's text,
// never reaching fn
// and never subject to fn's own retry decision: a payload that doesn't match
// the declared type is never worth retrying.
func RegisterTyped[T any](registry *HandlerRegistry, typeName string, fn func(ctx context.Context, args T) (JobExecutionResult, error)) {
	registry.Register(typeName, func(ctx context.Context, arguments *string) (JobExecutionResult, error) {
		var args T
		if arguments != nil && *arguments != "" {
			if err := json.Unmarshal([]byte(*arguments), &args); err != nil {
				return Failed(fmt.Sprintf("%s: %v", ErrDeserialization, err), false, nil), nil
			}
		}
		return fn(ctx, args)
	})
}
