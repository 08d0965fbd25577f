package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/haloclinic/patient-realtime/internal/events"
	"github.com/haloclinic/patient-realtime/internal/logging"
	"github.com/haloclinic/patient-realtime/internal/metrics"
)

// Status is a snapshot of the connection lifecycle.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Credentials is the authentication metadata passed at connection time.
type Credentials struct {
	Token    string
	UserID   int64
	UserType string
}

// Config contains connection client settings
type Config struct {
	// WebSocket endpoint of the event gateway
	Endpoint string

	// Reconnection policy: capped exponential delay up to a fixed ceiling
	// of attempts, after which the client stays disconnected until an
	// explicit Connect call.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMaxAttempts  int

	// Handshake timeout for a single dial
	DialTimeout time.Duration

	// Outbound write deadline
	WriteTimeout time.Duration

	// Dialer to use; defaults to websocket.DefaultDialer. Tests inject a
	// dialer pointed at a local server.
	Dialer *websocket.Dialer
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:              "ws://localhost:9400/events",
		ReconnectInitialDelay: 1 * time.Second,
		ReconnectMaxDelay:     5 * time.Second,
		ReconnectMaxAttempts:  5,
		DialTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Second,
	}
}

// Client owns the single persistent channel to the event gateway and the
// subscriber registry layered on it. One read pump dispatches all events
// sequentially, so handlers observe run-to-completion semantics per event.
type Client struct {
	config   Config
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	registry *registry

	mu       sync.Mutex
	conn     *websocket.Conn
	status   Status
	attempts int
	gen      uint64 // bumped on Connect/Disconnect to invalidate stale pumps

	writeMu sync.Mutex
}

// NewClient creates a new connection client
func NewClient(config Config) *Client {
	if config.Dialer == nil {
		config.Dialer = websocket.DefaultDialer
	}
	if config.ReconnectInitialDelay <= 0 {
		config.ReconnectInitialDelay = 1 * time.Second
	}
	if config.ReconnectMaxDelay <= 0 {
		config.ReconnectMaxDelay = 5 * time.Second
	}
	if config.ReconnectMaxAttempts <= 0 {
		config.ReconnectMaxAttempts = 5
	}

	return &Client{
		config:   config,
		logger:   logging.Component("realtime"),
		metrics:  metrics.GetMetrics(),
		registry: newRegistry(),
	}
}

// Connect opens the transport with the given credentials. It is a no-op if a
// connection is already live or being established, and it does not block:
// the result is observed through the connect and connect_error events.
func (c *Client) Connect(creds Credentials) {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		c.logger.Debug().Str("status", c.status.String()).Msg("Connect ignored, connection already live")
		return
	}
	c.status = StatusConnecting
	c.attempts = 0
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.metrics.ConnectionState.Set(float64(StatusConnecting))
	c.logger.Info().Str("endpoint", c.config.Endpoint).Int64("user_id", creds.UserID).Msg("Opening connection")

	go c.run(gen, creds)
}

// Disconnect tears down the transport and clears every subscription list.
// Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.conn = nil
	wasDisconnected := c.status == StatusDisconnected
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}

	dropped := c.registry.clear()
	c.metrics.ListenersActive.Sub(float64(dropped))
	c.metrics.ConnectionState.Set(float64(StatusDisconnected))

	if !wasDisconnected {
		c.logger.Info().Int("listeners_dropped", dropped).Msg("Disconnected")
	}
}

// IsConnected reports whether the transport is currently live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected
}

// State returns the current connection status snapshot.
func (c *Client) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// On appends a handler to the event's subscriber list and returns its
// identity token. There is no limit on handlers per event; unrelated
// consumers may share an event name without interfering.
func (c *Client) On(event string, fn Handler) *Listener {
	l := c.registry.add(event, fn)
	c.metrics.ListenersActive.Inc()
	return l
}

// Off removes a single handler by identity, tolerating absence.
func (c *Client) Off(l *Listener) {
	if c.registry.remove(l) {
		c.metrics.ListenersActive.Dec()
	}
}

// RemoveAllListeners drops the entire handler list for an event name.
func (c *Client) RemoveAllListeners(event string) {
	n := c.registry.removeAll(event)
	c.metrics.ListenersActive.Sub(float64(n))
}

// ListenerCount reports the number of handlers registered for an event.
func (c *Client) ListenerCount(event string) int {
	return c.registry.count(event)
}

// Emit sends a payload upstream. If the client is not connected the call is
// dropped with a warning; it does not queue or retry.
func (c *Client) Emit(event string, payload interface{}) {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.metrics.EmitsDroppedTotal.Inc()
		c.logger.Warn().Str("event", event).Msg("Emit dropped, client not connected")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal emit payload")
		return
	}

	frame, err := json.Marshal(events.Event{Name: event, Data: data})
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event frame")
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Warn().Err(err).Str("event", event).Msg("Emit write failed")
	}
}

// SubscribeChannels asks the gateway to start pushing the named channels.
func (c *Client) SubscribeChannels(channels ...string) {
	c.Emit(events.SubscribeChannels, channels)
}

// UnsubscribeChannels asks the gateway to stop pushing the named channels.
func (c *Client) UnsubscribeChannels(channels ...string) {
	c.Emit(events.UnsubscribeChannels, channels)
}

// Ping sends a ping control event. Any pong reply is observable by
// subscribing to the pong event name.
func (c *Client) Ping() {
	c.Emit(events.Ping, nil)
}

// run owns the connection for one generation: it dials, pumps messages, and
// reconnects with capped backoff until the attempt ceiling is reached or the
// generation is invalidated by Connect/Disconnect.
func (c *Client) run(gen uint64, creds Credentials) {
	delay := c.config.ReconnectInitialDelay

	for {
		conn, err := c.dial(creds)
		if err != nil {
			c.dispatch(events.ConnectError, errorPayload(err))

			c.mu.Lock()
			if c.gen != gen {
				c.mu.Unlock()
				return
			}
			c.attempts++
			attempts := c.attempts
			if attempts >= c.config.ReconnectMaxAttempts {
				c.status = StatusDisconnected
				c.mu.Unlock()
				c.metrics.ConnectionState.Set(float64(StatusDisconnected))
				c.logger.Error().Err(err).Int("attempts", attempts).
					Msg("Reconnection ceiling reached, staying disconnected until explicit connect")
				return
			}
			c.mu.Unlock()

			c.metrics.ReconnectAttempts.Inc()
			c.logger.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", delay).Msg("Connection attempt failed")

			time.Sleep(delay)
			delay *= 2
			if delay > c.config.ReconnectMaxDelay {
				delay = c.config.ReconnectMaxDelay
			}
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.status = StatusConnected
		c.attempts = 0
		c.mu.Unlock()

		c.metrics.ConnectionState.Set(float64(StatusConnected))
		c.logger.Info().Msg("Connected")
		c.dispatch(events.Connect, nil)

		delay = c.config.ReconnectInitialDelay
		c.readPump(conn)

		c.dispatch(events.Disconnect, nil)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		c.status = StatusConnecting
		c.mu.Unlock()

		c.metrics.ConnectionState.Set(float64(StatusConnecting))
		c.logger.Warn().Msg("Connection lost, reconnecting")
	}
}

// dial opens one websocket connection carrying the auth metadata as headers.
func (c *Client) dial(creds Credentials) (*websocket.Conn, error) {
	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+creds.Token)
	headers.Set("X-User-ID", fmt.Sprintf("%d", creds.UserID))
	headers.Set("X-User-Type", creds.UserType)

	dialer := *c.config.Dialer
	if c.config.DialTimeout > 0 {
		dialer.HandshakeTimeout = c.config.DialTimeout
	}

	conn, resp, err := dialer.Dial(c.config.Endpoint, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.Endpoint, err)
	}
	return conn, nil
}

// readPump reads frames until the connection errors and dispatches each one.
func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame events.Event
		if err := json.Unmarshal(message, &frame); err != nil || frame.Name == "" {
			c.logger.Warn().Str("frame", string(message)).Msg("Dropping malformed frame")
			continue
		}

		c.dispatch(frame.Name, frame.Data)
	}
}

// dispatch invokes every handler registered for the event, in registration
// order. Each invocation is isolated: a panicking handler is recovered and
// logged so it cannot starve its siblings.
func (c *Client) dispatch(event string, data json.RawMessage) {
	listeners := c.registry.snapshot(event)
	if listeners == nil {
		return
	}

	c.metrics.EventsDispatchedTotal.WithLabelValues(event).Inc()

	for _, l := range listeners {
		c.invoke(event, l, data)
	}
}

func (c *Client) invoke(event string, l *Listener, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.HandlerErrorsTotal.WithLabelValues(event).Inc()
			c.logger.Error().Str("event", event).Interface("panic", r).Msg("Handler panicked during dispatch")
		}
	}()
	l.fn(data)
}

func errorPayload(err error) json.RawMessage {
	data, mErr := json.Marshal(map[string]string{"message": err.Error()})
	if mErr != nil {
		return nil
	}
	return data
}
