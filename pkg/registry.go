package pkg

import (
	"fmt"
	"sort"
)

// StateDelta is the result of a handler probe: whether remote state already
// matches the desired state, with optional human-readable detail (e.g. a
// diff) describing what would change.
type StateDelta struct {
	InSync bool
	Detail string
}

// ApplyOutcome is the result of a handler apply.
type ApplyOutcome struct {
	Changed bool
	Detail  string
	// Facts are merged into the runtime-facts layer of the bindings after a
	// successful apply (e.g. a supervised daemon's PID, parsed credentials).
	Facts map[string]interface{}
}

// Handler implements one task type. Probe must be read-only and report
// whether applying would change remote state; Apply performs the mutation.
// Handlers must tolerate a re-invoked Apply when no delta exists, since the
// engine re-probes after a transient failure.
type Handler interface {
	Probe(closure *Closure, params map[string]interface{}) (*StateDelta, error)
	Apply(closure *Closure, params map[string]interface{}) (*ApplyOutcome, error)
}

// Rollbacker is optionally implemented by handlers that can undo an apply.
type Rollbacker interface {
	Rollback(closure *Closure, params map[string]interface{}) error
}

// NonRetryable is implemented by handlers whose apply carries no idempotence
// guarantee (shell). The engine never retries such steps automatically; a
// task-level `retryable: true` annotation overrides the marker.
type NonRetryable interface {
	NonRetryable() bool
}

// Registry maps task-type names to handler implementations.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under a type name. Registering the same name twice
// is a programming error.
func (r *Registry) Register(name string, handler Handler) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler %s already registered", name))
	}
	r.handlers[name] = handler
}

// Resolve returns the handler for a type name.
func (r *Registry) Resolve(name string) (Handler, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, &UnknownTaskTypeError{Type: name}
	}
	return handler, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// RegisterHandler registers a handler in the default registry. Built-in
// handlers register themselves here from their init functions.
func RegisterHandler(name string, handler Handler) {
	defaultRegistry.Register(name, handler)
}

// DefaultRegistry returns the registry the built-in handlers register into.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
