package refresh

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haloclinic/patient-realtime/internal/realtime"
)

// fakeBus is a test double for the connection client: it records
// registrations and lets the test fire events directly.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[*realtime.Listener]fakeEntry
	onCalls  int
	offCalls int
}

type fakeEntry struct {
	event string
	fn    realtime.Handler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[*realtime.Listener]fakeEntry{}}
}

func (b *fakeBus) On(event string, fn realtime.Handler) *realtime.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := &realtime.Listener{}
	b.handlers[l] = fakeEntry{event: event, fn: fn}
	b.onCalls++
	return l
}

func (b *fakeBus) Off(l *realtime.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, l)
	b.offCalls++
}

// fire dispatches an event to every registered handler.
func (b *fakeBus) fire(event string) {
	b.mu.Lock()
	var fns []realtime.Handler
	for _, entry := range b.handlers {
		if entry.event == event {
			fns = append(fns, entry.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(json.RawMessage(nil))
	}
}

func (b *fakeBus) listenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func TestEventTriggersRefresh(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)
	defer scheduler.Stop()

	var calls atomic.Int64
	scheduler.Apply(func() error {
		calls.Add(1)
		return nil
	}, Options{Events: []string{"medic.assigned", "medic.arrived"}, Enabled: true})

	bus.fire("medic.assigned")
	bus.fire("medic.arrived")
	bus.fire("payment.processed") // not subscribed

	assert.Equal(t, int64(2), calls.Load())
}

func TestLatestFunctionWinsWithoutResubscribe(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)
	defer scheduler.Stop()

	opts := Options{Events: []string{"medic.assigned"}, Enabled: true}

	var first, second atomic.Int64
	scheduler.Apply(func() error { first.Add(1); return nil }, opts)

	// A new callback on every update cycle must not rebuild the listener
	// set; the registration reads through the mutable cell at call time.
	scheduler.Apply(func() error { second.Add(1); return nil }, opts)
	assert.Equal(t, 1, bus.onCalls, "unchanged options must not resubscribe")

	bus.fire("medic.assigned")

	assert.Equal(t, int64(0), first.Load())
	assert.Equal(t, int64(1), second.Load())
}

func TestIntervalTriggersRefresh(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)
	defer scheduler.Stop()

	var calls atomic.Int64
	scheduler.Apply(func() error {
		calls.Add(1)
		return nil
	}, Options{Interval: 10 * time.Millisecond, Enabled: true})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, calls.Load(), int64(2), "polling fallback should fire repeatedly")
}

func TestStopLeavesNothingBehind(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)

	var calls atomic.Int64
	scheduler.Apply(func() error {
		calls.Add(1)
		return nil
	}, Options{Events: []string{"medic.assigned"}, Interval: 10 * time.Millisecond, Enabled: true})

	bus.fire("medic.assigned")
	before := calls.Load()
	assert.GreaterOrEqual(t, before, int64(1))

	scheduler.Stop()
	assert.Equal(t, 0, bus.listenerCount(), "no listener may survive teardown")

	// Server events keep arriving and timers keep ticking elsewhere; this
	// registration stays silent.
	bus.fire("medic.assigned")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, calls.Load(), "no invocation may happen after teardown")
}

func TestDisableTearsDown(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)
	defer scheduler.Stop()

	var calls atomic.Int64
	fn := func() error { calls.Add(1); return nil }

	scheduler.Apply(fn, Options{Events: []string{"medic.assigned"}, Enabled: true})
	scheduler.Apply(fn, Options{Events: []string{"medic.assigned"}, Enabled: false})

	assert.Equal(t, 0, bus.listenerCount())
	bus.fire("medic.assigned")
	assert.Equal(t, int64(0), calls.Load())
}

func TestOptionChangeRebuildsListeners(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)
	defer scheduler.Stop()

	var calls atomic.Int64
	fn := func() error { calls.Add(1); return nil }

	scheduler.Apply(fn, Options{Events: []string{"medic.assigned"}, Enabled: true})
	scheduler.Apply(fn, Options{Events: []string{"lab_results.ready"}, Enabled: true})

	bus.fire("medic.assigned")
	assert.Equal(t, int64(0), calls.Load(), "old event set must be gone")

	bus.fire("lab_results.ready")
	assert.Equal(t, int64(1), calls.Load())
}

func TestRefreshErrorsAreSwallowed(t *testing.T) {
	bus := newFakeBus()
	scheduler := NewScheduler(bus)
	defer scheduler.Stop()

	scheduler.Apply(func() error {
		return errors.New("backend unavailable")
	}, Options{Events: []string{"medic.assigned"}, Enabled: true})

	// Must not panic or propagate.
	bus.fire("medic.assigned")

	scheduler.Apply(func() error {
		panic("worse")
	}, Options{Events: []string{"medic.assigned"}, Enabled: true})

	bus.fire("medic.assigned")
}
