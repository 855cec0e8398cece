// Package dispatcher defines the external command-resolution boundary the
// scheduler consumes, plus a reference registry implementation. Grounded on
// internal/worker/handler.go's name-to-HandlerFunc registry, generalized
// from a fixed job.Job struct to the scheduler's opaque payload map.
package dispatcher

import "fmt"

// Dispatcher resolves payload["cmd"] to a handler, invokes it, and returns
// an opaque JSON-serializable result. The scheduler classifies the result
// per §4.5: nil or literal true is success, anything else is failure, and a
// panic inside Dispatch is recovered by the caller and treated as failure.
type Dispatcher interface {
	Dispatch(payload map[string]interface{}) (interface{}, error)
}

// HandlerFunc processes one job payload and returns an opaque result.
type HandlerFunc func(payload map[string]interface{}) (interface{}, error)

// Registry is a reference Dispatcher that routes on payload["cmd"] to a
// registered HandlerFunc by name.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register adds a handler for a command name.
func (r *Registry) Register(cmd string, handler HandlerFunc) {
	r.handlers[cmd] = handler
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	return len(r.handlers)
}

// Dispatch implements Dispatcher by routing on payload["cmd"].
func (r *Registry) Dispatch(payload map[string]interface{}) (interface{}, error) {
	cmdVal, ok := payload["cmd"]
	if !ok {
		return nil, fmt.Errorf("payload missing required cmd field")
	}
	cmd, ok := cmdVal.(string)
	if !ok || cmd == "" {
		return nil, fmt.Errorf("payload cmd field must be a non-empty string")
	}

	handler, exists := r.handlers[cmd]
	if !exists {
		return nil, fmt.Errorf("no handler registered for command: %s", cmd)
	}
	return handler(payload)
}

var _ Dispatcher = (*Registry)(nil)
