// Package hooks dispatches planning, build and server lifecycle events to
// registered handlers.
package hooks

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/agentgen/internal/logging"
)

// Event names.
const (
	EventPlanCreated    = "plan_created"
	EventBuildStart     = "build_start"
	EventTaskStart      = "task_start"
	EventTaskDone       = "task_done"
	EventTaskFailed     = "task_failed"
	EventBuildSucceeded = "build_succeeded"
	EventBuildFailed    = "build_failed"
	EventServerStart    = "server_start"
	EventServerStop     = "server_stop"
)

// AllEvents lists every event name in lifecycle order.
var AllEvents = []string{
	EventPlanCreated,
	EventBuildStart,
	EventTaskStart,
	EventTaskDone,
	EventTaskFailed,
	EventBuildSucceeded,
	EventBuildFailed,
	EventServerStart,
	EventServerStop,
}

// Payload is what a handler receives.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds registrations. The zero value is not usable; call
// NewManager. A nil *Manager accepts Emit calls and drops them.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	all      []namedHandler
	now      func() time.Time
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		now:      time.Now,
		log:      log.Sub("hooks"),
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnAll registers handler for every event. Catch-all handlers run after the
// event's own handlers.
func (m *Manager) OnAll(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = append(m.all, namedHandler{name: name, handler: handler})
	m.log.Debug().Str("handler", name).Msg("catch-all hook registered")
}

// Off removes every handler called name from event. An empty event removes
// the catch-all handler of that name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := func(h namedHandler) bool { return h.name == name }
	if event == "" {
		m.all = slices.DeleteFunc(m.all, drop)
		return
	}
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], drop)
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]namedHandler, 0, len(m.handlers[event])+len(m.all))
	out = append(out, m.handlers[event]...)
	return append(out, m.all...)
}

// Emit runs the handlers for event synchronously, in registration order.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now().UTC(), Data: data}
	for _, h := range handlers {
		m.call(ctx, h, p, "hook handler error")
	}
}

// EmitAsync runs each handler in its own goroutine and returns at once.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now().UTC(), Data: data}
	for _, h := range handlers {
		go m.call(ctx, h, p, "async hook handler error")
	}
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload, msg string) {
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg(msg)
	}
}

// Count returns the number of handlers that would run for event, catch-all
// handlers included.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event]) + len(m.all)
}

// Events returns the sorted names of events with a dedicated handler.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
