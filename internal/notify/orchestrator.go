package notify

import (
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/haloclinic/patient-realtime/internal/events"
	"github.com/haloclinic/patient-realtime/internal/logging"
	"github.com/haloclinic/patient-realtime/internal/metrics"
	"github.com/haloclinic/patient-realtime/internal/realtime"
)

// Bus is the slice of the connection client the orchestrator owns. The
// orchestrator is the sole owner of the client's lifecycle; screen-level
// consumers only register listeners.
type Bus interface {
	Connect(creds realtime.Credentials)
	Disconnect()
	On(event string, fn realtime.Handler) *realtime.Listener
	Off(l *realtime.Listener)
	Emit(event string, payload interface{})
	IsConnected() bool
}

// Session identifies the authenticated patient. A session missing its token
// or user id counts as no session at all.
type Session struct {
	Token    string
	UserID   int64
	UserType string
}

func (s Session) valid() bool {
	return s.Token != "" && s.UserID != 0
}

// Config contains orchestrator settings
type Config struct {
	// Maximum in-memory notification records kept for the session
	HistoryLimit int

	// Size of the seen-event-id cache used to drop server redeliveries
	// after a reconnect
	DedupeCacheSize int
}

// DefaultConfig returns a default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    200,
		DedupeCacheSize: 512,
	}
}

// Orchestrator translates the authenticated identity's lifecycle into a live
// connection, fixed-event subscriptions, and user-visible effects. The
// generic notification projector and the high-salience modal projector are
// registered as independent consumers of the same event stream.
type Orchestrator struct {
	bus       Bus
	presenter Presenter
	prompter  Prompter
	navigator Navigator
	center    *Center
	modal     *Modal
	seen      *lru.Cache
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	session   Session
	listeners []*realtime.Listener
}

// NewOrchestrator creates the process-wide orchestrator. presenter, prompter
// and navigator are the UI-side collaborators; any of them may be nil, in
// which case the corresponding side effect is skipped.
func NewOrchestrator(bus Bus, config Config, presenter Presenter, prompter Prompter, navigator Navigator) (*Orchestrator, error) {
	if config.DedupeCacheSize <= 0 {
		config.DedupeCacheSize = 512
	}

	seen, err := lru.New(config.DedupeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	if presenter == nil {
		presenter = NopPresenter{}
	}

	return &Orchestrator{
		bus:       bus,
		presenter: presenter,
		prompter:  prompter,
		navigator: navigator,
		center:    NewCenter(config.HistoryLimit),
		modal:     &Modal{},
		seen:      seen,
		logger:    logging.Component("notify"),
		metrics:   metrics.GetMetrics(),
	}, nil
}

// SetSession enters the connected state for an authenticated identity. The
// previous state is always torn down first, so re-login with a new identity
// never duplicates registrations. A session missing token or id is treated
// as a logout.
func (o *Orchestrator) SetSession(session Session) {
	o.teardown()

	if !session.valid() {
		o.logger.Info().Msg("Session missing token or user id, staying idle")
		return
	}

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	o.register(session)
	o.bus.Connect(realtime.Credentials{
		Token:    session.Token,
		UserID:   session.UserID,
		UserType: session.UserType,
	})

	o.logger.Info().Int64("user_id", session.UserID).Str("user_type", session.UserType).Msg("Session active, connecting")
}

// ClearSession enters the idle state: handlers are removed by identity and
// the connection is torn down.
func (o *Orchestrator) ClearSession() {
	o.teardown()
	o.logger.Info().Msg("Session cleared")
}

// Reconnect re-enters the connected state for the current session, if any.
// Used after the reconnection ceiling was reached.
func (o *Orchestrator) Reconnect() {
	o.mu.Lock()
	session := o.session
	o.mu.Unlock()
	o.SetSession(session)
}

// IsConnected reports whether the underlying transport is live.
func (o *Orchestrator) IsConnected() bool {
	return o.bus.IsConnected()
}

// UnreadCount returns the unread notification counter.
func (o *Orchestrator) UnreadCount() int {
	return o.center.UnreadCount()
}

// Records returns the session's notification records, newest first.
func (o *Orchestrator) Records() []Record {
	return o.center.Records()
}

// MarkRead marks a single notification read.
func (o *Orchestrator) MarkRead(id string) {
	o.center.MarkRead(id)
	o.metrics.UnreadNotifications.Set(float64(o.center.UnreadCount()))
}

// MarkAllRead marks every notification read.
func (o *Orchestrator) MarkAllRead() {
	o.center.MarkAllRead()
	o.metrics.UnreadNotifications.Set(0)
}

// ClearNotifications drops every record and resets the unread counter.
func (o *Orchestrator) ClearNotifications() {
	o.center.Clear()
	o.metrics.UnreadNotifications.Set(0)
}

// AcceptanceModal returns the medic-acceptance modal state.
func (o *Orchestrator) AcceptanceModal() (events.MedicPayload, bool) {
	return o.modal.Current()
}

// DismissModal hides the medic-acceptance modal.
func (o *Orchestrator) DismissModal() {
	o.modal.Dismiss()
}

// teardown removes every listener this orchestrator registered, by identity,
// then disconnects. Listener removal happens first so a later re-entry into
// the connected state cannot double-register.
func (o *Orchestrator) teardown() {
	o.mu.Lock()
	listeners := o.listeners
	o.listeners = nil
	o.session = Session{}
	o.mu.Unlock()

	for _, l := range listeners {
		o.bus.Off(l)
	}
	o.bus.Disconnect()
}

// register installs the full fixed event list, exactly once per entry into
// the connected state.
func (o *Orchestrator) register(session Session) {
	var listeners []*realtime.Listener

	// Generic notification projector: one handler per notifiable event.
	for _, name := range notifiableEvents() {
		event := name
		listeners = append(listeners, o.bus.On(event, func(data json.RawMessage) {
			o.project(event, data)
		}))
	}

	// High-salience modal projector: an independent consumer of the
	// acceptance event, so the special behavior stays separately testable.
	listeners = append(listeners, o.bus.On(events.ServiceRequestAccepted, func(data json.RawMessage) {
		o.projectModal(data)
	}))

	// Lab consent prompt, a second independent consumer of lab_request.created.
	listeners = append(listeners, o.bus.On(events.LabRequestCreated, func(data json.RawMessage) {
		o.promptLabConsent(data)
	}))

	// After each (re)connect, subscribe to the patient's channel.
	listeners = append(listeners, o.bus.On(events.Connect, func(_ json.RawMessage) {
		o.bus.Emit(events.SubscribeChannels, []string{fmt.Sprintf("patient.%d", session.UserID)})
	}))

	listeners = append(listeners, o.bus.On(events.ConnectError, func(data json.RawMessage) {
		o.logger.Warn().RawJSON("detail", nonEmpty(data)).Msg("Transport reported a connection error")
	}))

	o.mu.Lock()
	o.listeners = listeners
	o.mu.Unlock()
}

// project runs the generic notification path: dedupe, record, counter,
// presenter. Presenter failure is independent of record creation.
func (o *Orchestrator) project(event string, data json.RawMessage) {
	if o.isDuplicate(event, data) {
		o.metrics.NotificationsDedupedTotal.Inc()
		o.logger.Debug().Str("event", event).Msg("Dropping redelivered event")
		return
	}

	payload := events.Decode(event, data)
	title, message := describe(event, payload)

	rec := o.center.Add(event, title, message, payload)
	o.metrics.NotificationsCreatedTotal.WithLabelValues(event).Inc()
	o.metrics.UnreadNotifications.Set(float64(o.center.UnreadCount()))

	if err := o.presenter.Present(rec); err != nil {
		o.logger.Warn().Err(err).Str("event", event).Msg("Local notification failed, record kept")
	}
}

// projectModal overwrites the single acceptance modal state with the latest
// payload. A new acceptance always overwrites, never queues.
func (o *Orchestrator) projectModal(data json.RawMessage) {
	payload, ok := events.Decode(events.ServiceRequestAccepted, data).(events.MedicPayload)
	if !ok {
		o.logger.Warn().Msg("Acceptance payload did not decode, modal unchanged")
		return
	}
	o.modal.Set(payload)
}

// promptLabConsent offers navigation to the payment/consent screen. Without
// a request id navigation is skipped; the generic notification still fired.
func (o *Orchestrator) promptLabConsent(data json.RawMessage) {
	payload, ok := events.Decode(events.LabRequestCreated, data).(events.LabRequestPayload)
	if !ok || o.prompter == nil {
		return
	}
	if payload.RequestID == 0 {
		o.logger.Warn().Msg("Lab request event without request_id, skipping navigation")
		return
	}

	// The prompt blocks on the user; keep it off the dispatch path.
	go func() {
		if o.prompter.ConfirmLabRequest(payload.MedicName, payload.TotalAmount, payload.PaymentMethod) {
			if o.navigator != nil {
				o.navigator.OpenLabPayment(payload.RequestID)
			}
		}
	}()
}

// isDuplicate reports whether the event carries an event_id we have already
// seen this session. Events without an id are never deduplicated.
func (o *Orchestrator) isDuplicate(event string, data json.RawMessage) bool {
	var envelope struct {
		EventID string `json:"event_id"`
	}
	if len(data) == 0 || json.Unmarshal(data, &envelope) != nil || envelope.EventID == "" {
		return false
	}

	key := event + ":" + envelope.EventID
	if _, ok := o.seen.Get(key); ok {
		return true
	}
	o.seen.Add(key, struct{}{})
	return false
}

// notifiableEvents is the fixed list feeding the generic projector: every
// domain event except the location stream, which feeds the map instead of
// the notification center.
func notifiableEvents() []string {
	var out []string
	for _, name := range events.Domain() {
		if name == events.MedicLocationUpdate {
			continue
		}
		out = append(out, name)
	}
	return out
}

func nonEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`{}`)
	}
	return data
}
