package realtime

import (
	"encoding/json"
	"sync"
)

// Handler is invoked with the raw payload of an event frame. The client never
// interprets the payload; decoding is the handler's business.
type Handler func(data json.RawMessage)

// Listener is the identity of one registered handler. Go functions are not
// comparable, so On returns a token and Off removes by token identity.
type Listener struct {
	event string
	fn    Handler
}

// registry maps event names to their handlers in registration order.
// Multiple independent consumers may register under the same event name;
// removing one listener never disturbs its siblings.
type registry struct {
	mu       sync.Mutex
	handlers map[string][]*Listener
}

func newRegistry() *registry {
	return &registry{
		handlers: make(map[string][]*Listener),
	}
}

// add appends a handler to the event's list, creating the list if absent.
func (r *registry) add(event string, fn Handler) *Listener {
	l := &Listener{event: event, fn: fn}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = append(r.handlers[event], l)
	return l
}

// remove splices out a single listener by identity, tolerating absence.
// Returns whether the listener was found.
func (r *registry) remove(l *Listener) bool {
	if l == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.handlers[l.event]
	if !ok {
		return false
	}

	for i, entry := range list {
		if entry == l {
			r.handlers[l.event] = append(list[:i], list[i+1:]...)
			if len(r.handlers[l.event]) == 0 {
				delete(r.handlers, l.event)
			}
			return true
		}
	}
	return false
}

// removeAll drops the entire list for an event name. Returns how many
// listeners were removed.
func (r *registry) removeAll(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.handlers[event])
	delete(r.handlers, event)
	return n
}

// snapshot returns the event's handler list in registration order. The copy
// lets dispatch run without holding the lock, so handlers may subscribe or
// unsubscribe freely.
func (r *registry) snapshot(event string) []*Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handlers[event]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Listener, len(list))
	copy(out, list)
	return out
}

// clear empties the whole registry and returns how many listeners were
// dropped. Used by explicit disconnect only; reconnection never touches it.
func (r *registry) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, list := range r.handlers {
		n += len(list)
	}
	r.handlers = make(map[string][]*Listener)
	return n
}

// count reports the number of listeners registered for an event.
func (r *registry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}
