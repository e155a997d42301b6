package pkg

import (
	"fmt"

	"github.com/convergerun/converge/pkg/common"
)

// HandlerTracker collects notifications raised by changed steps and defers
// handler invocation to the end of the run. Notifying the same handler from
// multiple steps queues it once; queued handlers run in the order they were
// declared, not the order they were notified.
type HandlerTracker struct {
	order    []string
	known    map[string]Task
	notified map[string]bool
}

// NewHandlerTracker builds a tracker over the declared handler tasks.
// Duplicate handler names are a playbook authoring error.
func NewHandlerTracker(handlers []Task) (*HandlerTracker, error) {
	t := &HandlerTracker{
		known:    make(map[string]Task, len(handlers)),
		notified: make(map[string]bool, len(handlers)),
	}
	for _, h := range handlers {
		if _, exists := t.known[h.Name]; exists {
			return nil, fmt.Errorf("handler %q declared twice", h.Name)
		}
		t.order = append(t.order, h.Name)
		t.known[h.Name] = h
	}
	return t, nil
}

// Validate checks every notify target on the given tasks against the declared
// handlers, so a dangling notification fails before execution starts.
func (t *HandlerTracker) Validate(tasks []Task) error {
	for _, task := range tasks {
		for _, name := range task.Notify {
			if _, ok := t.known[name]; !ok {
				return fmt.Errorf("task %q notifies unknown handler %q", task.Name, name)
			}
		}
	}
	return nil
}

// Notify queues a handler for deferred invocation. Repeated notifications
// collapse into one.
func (t *HandlerTracker) Notify(handlerName string) error {
	if _, ok := t.known[handlerName]; !ok {
		return fmt.Errorf("notification for unknown handler %q", handlerName)
	}
	if !t.notified[handlerName] {
		common.LogDebug("Handler notified", map[string]interface{}{
			"handler": handlerName,
		})
	}
	t.notified[handlerName] = true
	return nil
}

// Pending returns the queued handler tasks in declaration order.
func (t *HandlerTracker) Pending() []Task {
	var pending []Task
	for _, name := range t.order {
		if t.notified[name] {
			pending = append(pending, t.known[name])
		}
	}
	return pending
}

// HasPending reports whether any handler is queued.
func (t *HandlerTracker) HasPending() bool {
	for _, notified := range t.notified {
		if notified {
			return true
		}
	}
	return false
}

// Reset clears the queue after the handlers ran.
func (t *HandlerTracker) Reset() {
	t.notified = make(map[string]bool, len(t.known))
}
