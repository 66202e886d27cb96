package chatkit

import (
	"sync"

	"github.com/rs/zerolog"
)

// ============================================================================
// Listener Registries
// ============================================================================

// registry is an ordered collection of callbacks for one event category.
// Insertion order is delivery order; removal uses the token handed out at
// registration and leaves the other entries untouched.
type registry[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listenerEntry[T]
}

type listenerEntry[T any] struct {
	id uint64
	fn func(T)
}

// add registers fn and returns its unsubscribe function.
func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, listenerEntry[T]{id: id, fn: fn})
	return func() { r.remove(id) }
}

func (r *registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *registry[T]) snapshot() []listenerEntry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]listenerEntry[T]{}, r.entries...)
}

// fanOut invokes every listener in registration order. Each callback runs
// inside its own recover so one misbehaving subscriber cannot break
// delivery to the others; failures are logged and delivery continues.
func fanOut[T any](log zerolog.Logger, r *registry[T], v T) {
	for _, e := range r.snapshot() {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Warn().Interface("panic", rec).Msg("listener panicked, continuing delivery")
				}
			}()
			e.fn(v)
		}()
	}
}

// ============================================================================
// Dispatcher
// ============================================================================

// dispatcher holds the five independent listener registries.
type dispatcher struct {
	log        zerolog.Logger
	messages   registry[Message]
	typing     registry[TypingIndicator]
	status     registry[UserStatus]
	connection registry[bool]
	errors     registry[string]
}

func newDispatcher(log zerolog.Logger) *dispatcher {
	return &dispatcher{log: log}
}

// OnMessage registers a listener for inbound chat messages and returns its
// unsubscribe function.
func (c *Client) OnMessage(fn func(Message)) func() {
	return c.dispatch.messages.add(fn)
}

// OnTyping registers a listener for typing indicators.
func (c *Client) OnTyping(fn func(TypingIndicator)) func() {
	return c.dispatch.typing.add(fn)
}

// OnUserStatus registers a listener for presence updates.
func (c *Client) OnUserStatus(fn func(UserStatus)) func() {
	return c.dispatch.status.add(fn)
}

// OnConnectionChange registers a listener for connection-state transitions.
func (c *Client) OnConnectionChange(fn func(bool)) func() {
	return c.dispatch.connection.add(fn)
}

// OnError registers a listener for user-visible errors: transport errors
// and reconnect-budget exhaustion.
func (c *Client) OnError(fn func(string)) func() {
	return c.dispatch.errors.add(fn)
}
