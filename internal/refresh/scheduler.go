// Package refresh keeps a consumer's data fresh by re-running a caller
// supplied refresh function whenever any of a set of events fires or a
// fallback interval elapses. It is purely a subscription-lifecycle manager
// layered on the connection client and a timer; it holds no domain state.
package refresh

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/haloclinic/patient-realtime/internal/logging"
	"github.com/haloclinic/patient-realtime/internal/metrics"
	"github.com/haloclinic/patient-realtime/internal/realtime"
)

// EventBus is the slice of the connection client the scheduler needs.
type EventBus interface {
	On(event string, fn realtime.Handler) *realtime.Listener
	Off(l *realtime.Listener)
}

// Func is a consumer's refresh callback. Errors are logged and swallowed;
// nothing propagates back through the scheduler. Event-triggered and
// timer-triggered invocations are not mutually exclusive, so Func must be
// safe under overlapping invocation.
type Func func() error

// Options declares what should trigger a refresh.
type Options struct {
	// Events lists the event names that trigger a refresh.
	Events []string

	// Interval is the fallback polling period. Zero disables polling.
	Interval time.Duration

	// Enabled gates the whole registration. While false, no listeners or
	// timer exist.
	Enabled bool
}

// registration is one live listener/timer set. It is replaced wholesale when
// the options change and carries the liveness flag that late callbacks check
// before doing anything.
type registration struct {
	alive     atomic.Bool
	listeners []*realtime.Listener
	stop      chan struct{}
}

// Scheduler invokes the latest refresh function on event arrival or on a
// timer. The function lives in a mutable cell read at call time, so the
// owning consumer may supply a new one on every update cycle without the
// listener set being torn down and rebuilt.
type Scheduler struct {
	bus     EventBus
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	fn      Func
	opts    Options
	current *registration
}

// NewScheduler creates a scheduler bound to the given bus.
func NewScheduler(bus EventBus) *Scheduler {
	return &Scheduler{
		bus:     bus,
		logger:  logging.Component("refresh"),
		metrics: metrics.GetMetrics(),
	}
}

// Apply updates the refresh function and, if the trigger options actually
// changed, rebuilds the listener set and timer. Calling Apply with only a new
// function is cheap and causes no resubscription.
func (s *Scheduler) Apply(fn Func, opts Options) {
	s.mu.Lock()
	s.fn = fn
	unchanged := s.current != nil && optionsEqual(s.opts, opts)
	if unchanged && opts.Enabled {
		s.mu.Unlock()
		return
	}

	old := s.current
	s.current = nil
	s.opts = opts
	s.mu.Unlock()

	s.release(old)

	if !opts.Enabled {
		return
	}

	reg := &registration{stop: make(chan struct{})}
	reg.alive.Store(true)

	for _, event := range opts.Events {
		reg.listeners = append(reg.listeners, s.bus.On(event, func(_ json.RawMessage) {
			s.invoke(reg, "event")
		}))
	}

	if opts.Interval > 0 {
		go s.pollLoop(reg, opts.Interval)
	}

	s.mu.Lock()
	if !optionsEqual(s.opts, opts) {
		// A concurrent Stop or Apply superseded this registration.
		s.mu.Unlock()
		s.release(reg)
		return
	}
	s.current = reg
	s.mu.Unlock()
}

// Stop tears down the current registration. No timer or listener survives,
// and any in-flight invocation becomes a no-op via the liveness flag.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	old := s.current
	s.current = nil
	s.opts = Options{}
	s.mu.Unlock()

	s.release(old)
}

func (s *Scheduler) release(reg *registration) {
	if reg == nil {
		return
	}
	reg.alive.Store(false)
	close(reg.stop)
	for _, l := range reg.listeners {
		s.bus.Off(l)
	}
}

func (s *Scheduler) pollLoop(reg *registration, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.stop:
			return
		case <-ticker.C:
			s.invoke(reg, "interval")
		}
	}
}

// invoke runs the latest refresh function if the registration is still live.
func (s *Scheduler) invoke(reg *registration, trigger string) {
	if !reg.alive.Load() {
		return
	}

	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()

	if fn == nil {
		return
	}

	s.metrics.RefreshInvocationsTotal.WithLabelValues(trigger).Inc()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RefreshErrorsTotal.Inc()
			s.logger.Error().Interface("panic", r).Str("trigger", trigger).Msg("Refresh function panicked")
		}
	}()

	if err := fn(); err != nil {
		s.metrics.RefreshErrorsTotal.Inc()
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("Refresh failed")
	}
}

// optionsEqual compares trigger options; the event list is treated as a set.
func optionsEqual(a, b Options) bool {
	if a.Enabled != b.Enabled || a.Interval != b.Interval || len(a.Events) != len(b.Events) {
		return false
	}
	seen := make(map[string]struct{}, len(a.Events))
	for _, e := range a.Events {
		seen[e] = struct{}{}
	}
	for _, e := range b.Events {
		if _, ok := seen[e]; !ok {
			return false
		}
	}
	return true
}
