// medisim is a development stand-in for the marketplace event gateway. It
// accepts the client's authenticated websocket handshake, answers the
// subscribe and ping control events, and pushes a scripted sequence of
// domain events read from a YAML scenario file.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/haloclinic/patient-realtime/internal/events"
	"github.com/haloclinic/patient-realtime/internal/logging"
)

// Scenario is a scripted push sequence.
type Scenario struct {
	Steps []Step `yaml:"steps"`
}

// Step is one pushed event, sent after its delay.
type Step struct {
	DelayMs int                    `yaml:"delay_ms"`
	Event   string                 `yaml:"event"`
	Data    map[string]interface{} `yaml:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// session serializes writes to one client connection; the control reader and
// the scenario pusher both send frames.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) writeFrame(frame events.Event) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data) == nil
}

func main() {
	addr := flag.String("addr", ":9400", "Listen address")
	scenarioFile := flag.String("scenario", "", "YAML scenario file to push to each client")
	loop := flag.Bool("loop", false, "Replay the scenario until the client disconnects")
	flag.Parse()

	if err := logging.Setup(logging.Config{Level: logging.LevelInfo, Format: logging.FormatConsole}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	logger := logging.Component("medisim")

	scenario := defaultScenario()
	if *scenarioFile != "" {
		data, err := os.ReadFile(*scenarioFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", *scenarioFile).Msg("Failed to read scenario")
		}
		if err := yaml.Unmarshal(data, &scenario); err != nil {
			log.Fatal().Err(err).Str("file", *scenarioFile).Msg("Failed to parse scenario")
		}
	}

	http.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			logger.Warn().Str("remote", r.RemoteAddr).Msg("Rejecting unauthenticated handshake")
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Upgrade failed")
			return
		}

		logger.Info().
			Str("remote", r.RemoteAddr).
			Str("user_id", r.Header.Get("X-User-ID")).
			Str("user_type", r.Header.Get("X-User-Type")).
			Msg("Client connected")

		sess := &session{conn: conn}
		done := make(chan struct{})
		go serveControl(sess, logger, done)
		pushScenario(sess, scenario, *loop, logger, done)
	})

	logger.Info().Str("addr", *addr).Int("steps", len(scenario.Steps)).Msg("Simulator listening")
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// serveControl reads inbound frames and answers the control events. done is
// closed when the client goes away.
func serveControl(sess *session, logger zerolog.Logger, done chan<- struct{}) {
	defer close(done)

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame events.Event
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn().Str("frame", string(message)).Msg("Dropping malformed inbound frame")
			continue
		}

		switch frame.Name {
		case events.Ping:
			sess.writeFrame(events.Event{Name: events.Pong})
		case events.SubscribeChannels, events.UnsubscribeChannels:
			logger.Info().Str("event", frame.Name).RawJSON("channels", frame.Data).Msg("Channel control")
		default:
			logger.Debug().Str("event", frame.Name).Msg("Ignoring inbound event")
		}
	}
}

func pushScenario(sess *session, scenario Scenario, loop bool, logger zerolog.Logger, done <-chan struct{}) {
	defer sess.conn.Close()

	for {
		for _, step := range scenario.Steps {
			select {
			case <-done:
				return
			case <-time.After(time.Duration(step.DelayMs) * time.Millisecond):
			}

			data, err := json.Marshal(step.Data)
			if err != nil {
				logger.Error().Err(err).Str("event", step.Event).Msg("Failed to marshal step data")
				continue
			}

			if !sess.writeFrame(events.Event{Name: step.Event, Data: data}) {
				return
			}
			logger.Info().Str("event", step.Event).Msg("Pushed")
		}
		if !loop {
			break
		}
	}

	// Scenario exhausted; keep the connection open so the client can keep
	// emitting control events until it disconnects.
	<-done
}

// defaultScenario walks one happy-path service request.
func defaultScenario() Scenario {
	step := func(delay int, event string, data map[string]interface{}) Step {
		return Step{DelayMs: delay, Event: event, Data: data}
	}
	return Scenario{Steps: []Step{
		step(1000, events.ServiceRequestAccepted, map[string]interface{}{"request_id": 1, "medic_name": "Dr. Achieng", "eta": "15 min"}),
		step(2000, events.MedicAssigned, map[string]interface{}{"request_id": 1, "medic_name": "Dr. Achieng"}),
		step(3000, events.MedicLocationUpdate, map[string]interface{}{"request_id": 1, "latitude": -1.2921, "longitude": 36.8219}),
		step(2000, events.MedicArrived, map[string]interface{}{"request_id": 1, "medic_name": "Dr. Achieng"}),
		step(1500, events.TreatmentStarted, map[string]interface{}{"request_id": 1, "medic_name": "Dr. Achieng"}),
		step(2000, events.LabRequestCreated, map[string]interface{}{"request_id": 1, "medic_name": "Dr. Achieng", "total_amount": 1500, "payment_method": "mpesa"}),
		step(3000, events.ServiceCompleted, map[string]interface{}{"request_id": 1}),
		step(1000, events.PaymentProcessed, map[string]interface{}{"request_id": 1, "amount": 3500, "payment_method": "mpesa"}),
		step(1000, events.ReviewRequested, map[string]interface{}{"request_id": 1}),
	}}
}
