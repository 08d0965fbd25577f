// patientd hosts the patient realtime core outside of a device: it opens the
// event gateway connection for a configured session, projects incoming
// domain events into the notification center, and serves local debug and
// metrics endpoints. It is the headless composition root used in development
// and soak testing.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/haloclinic/patient-realtime/internal/config"
	"github.com/haloclinic/patient-realtime/internal/logging"
	"github.com/haloclinic/patient-realtime/internal/notify"
	"github.com/haloclinic/patient-realtime/internal/realtime"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	endpoint := flag.String("endpoint", "", "Event gateway endpoint (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *endpoint, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Setup(logging.Config{
		Level:         logging.LogLevel(cfg.Logging.Level),
		Format:        logging.LogFormat(cfg.Logging.Format),
		IncludeCaller: cfg.Logging.IncludeCaller,
		GlobalFields:  cfg.Logging.GlobalFields,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	logger := logging.Component("patientd")

	client := realtime.NewClient(realtime.Config{
		Endpoint:              cfg.Realtime.Endpoint,
		ReconnectInitialDelay: cfg.Realtime.ReconnectInitialDelay(),
		ReconnectMaxDelay:     cfg.Realtime.ReconnectMaxDelay(),
		ReconnectMaxAttempts:  cfg.Realtime.ReconnectMaxAttempts,
		DialTimeout:           time.Duration(cfg.Realtime.DialTimeoutMs) * time.Millisecond,
		WriteTimeout:          time.Duration(cfg.Realtime.WriteTimeoutMs) * time.Millisecond,
	})

	orchestrator, err := notify.NewOrchestrator(client, notify.Config{
		HistoryLimit:    cfg.Notifications.HistoryLimit,
		DedupeCacheSize: cfg.Notifications.DedupeCacheSize,
	}, logPresenter{}, autoPrompter{}, logNavigator{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	orchestrator.SetSession(sessionFromEnv())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	if cfg.Debug.Enabled {
		server := &http.Server{
			Addr:    cfg.Debug.Addr,
			Handler: debugRouter(cfg, orchestrator),
		}

		group.Go(func() error {
			logger.Info().Str("addr", cfg.Debug.Addr).Msg("Debug server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		orchestrator.ClearSession()
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("Shutdown with error")
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

// debugRouter serves metrics, health, and a small notification inspector.
func debugRouter(cfg *config.Config, orchestrator *notify.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.HTTPMiddleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Endpoint, promhttp.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/notifications", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for _, rec := range orchestrator.Records() {
			_, _ = w.Write([]byte(rec.CreatedAt.Format(time.RFC3339) + " [" + rec.Event + "] " + rec.Title + ": " + rec.Message + "\n"))
		}
	})

	r.Post("/notifications/read-all", func(w http.ResponseWriter, _ *http.Request) {
		orchestrator.MarkAllRead()
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// sessionFromEnv builds the session from PATIENTRT_TOKEN, PATIENTRT_USER_ID
// and PATIENTRT_USER_TYPE. An incomplete environment leaves the orchestrator
// idle, same as a logged-out app.
func sessionFromEnv() notify.Session {
	userID, _ := strconv.ParseInt(os.Getenv("PATIENTRT_USER_ID"), 10, 64)
	userType := os.Getenv("PATIENTRT_USER_TYPE")
	if userType == "" {
		userType = "patient"
	}
	return notify.Session{
		Token:    os.Getenv("PATIENTRT_TOKEN"),
		UserID:   userID,
		UserType: userType,
	}
}

// logPresenter stands in for the OS notification surface.
type logPresenter struct{}

func (logPresenter) Present(rec notify.Record) error {
	log.Info().Str("event", rec.Event).Str("title", rec.Title).Str("message", rec.Message).Msg("Notification")
	return nil
}

// autoPrompter declines lab consent prompts; a headless run cannot answer.
type autoPrompter struct{}

func (autoPrompter) ConfirmLabRequest(medicName string, totalAmount float64, paymentMethod string) bool {
	log.Info().Str("medic", medicName).Float64("total", totalAmount).Str("method", paymentMethod).
		Msg("Lab consent prompt suppressed in headless mode")
	return false
}

// logNavigator records navigation intents instead of navigating.
type logNavigator struct{}

func (logNavigator) OpenLabPayment(requestID int64) {
	log.Info().Int64("request_id", requestID).Msg("Navigation intent: lab payment")
}
