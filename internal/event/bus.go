package event

import (
	"fmt"
	"sync"
)

// Bus fans conversation lifecycle events out to registered hooks: turns
// accepted and persisted, sessions hydrated or cleared, images generated.
//
// Blocking hooks run sequentially in registration order, and the first
// failure aborts the emit. Non-blocking hooks each run in their own
// goroutine; their failures and panics are only logged. A nil *Bus is a
// no-op, so callers never have to guard an Emit.
type Bus struct {
	mu     sync.RWMutex
	hooks  []Hook
	logger Logger
}

// Logger is the slice of the telemetry logger the bus needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// NewBus creates a bus. A nil logger silences async hook failures.
func NewBus(logger Logger) *Bus {
	return &Bus{logger: logger}
}

// Register adds a hook to the dispatch list.
func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// Emit dispatches ev to every hook whose subscription matches its type.
// The first error from a blocking hook stops dispatch and is returned.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	hooks := append([]Hook(nil), b.hooks...)
	b.mu.RUnlock()

	for _, h := range hooks {
		if !h.Matches(ev.Type) {
			continue
		}
		if h.IsBlocking() {
			if err := h.Handle(ev); err != nil {
				return fmt.Errorf("blocking hook %s failed: %w", h.Name(), err)
			}
			continue
		}
		go b.dispatchAsync(h, ev)
	}
	return nil
}

// dispatchAsync runs a non-blocking hook, containing its errors and panics.
func (b *Bus) dispatchAsync(h Hook, ev Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Warn("Hook panicked",
				"hook", h.Name(),
				"event", string(ev.Type),
				"panic", r,
			)
		}
	}()
	if err := h.Handle(ev); err != nil && b.logger != nil {
		b.logger.Warn("Hook failed",
			"hook", h.Name(),
			"event", string(ev.Type),
			"error", err,
		)
	}
}
