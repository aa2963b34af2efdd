package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/api/handlers"
	"github.com/dvloznov/twocents/internal/api/middleware"
	"github.com/dvloznov/twocents/internal/config"
	"github.com/dvloznov/twocents/internal/infra/bigquery"
	"github.com/dvloznov/twocents/internal/infra/sqlite"
	"github.com/dvloznov/twocents/internal/logger"
	"github.com/dvloznov/twocents/internal/notify"
	"github.com/dvloznov/twocents/internal/remote"
	"github.com/dvloznov/twocents/internal/remote/inmemory"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML config file")
		port        = flag.String("port", "", "HTTP server port (overrides api.port)")
		defaultUser = flag.String("default-user", "", "User for requests without X-User-ID (single-user installs)")
	)
	flag.Parse()

	boot := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("Failed to load config")
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid log level")
	}
	log := logger.NewWithLevel(level)
	if *port == "" {
		*port = cfg.API.Port
	}

	ctx := context.Background()

	backends, db, err := openFactory(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend.Kind).Msg("Failed to open backend")
	}
	defer db.Close()

	hub := notify.NewHub(log)

	mux := http.NewServeMux()
	handlers.Register(mux, backends, hub, log)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "healthy",
			"backend":  cfg.Backend.Kind,
			"sessions": hub.Sessions(),
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Session(*defaultUser)(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("backend", cfg.Backend.Kind).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	if err := hub.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close change hub")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openFactory opens the shared database for the configured backend kind.
// The returned closer owns the connections; per-session backends do not.
func openFactory(ctx context.Context, cfg *config.Config, log zerolog.Logger) (remote.Factory, io.Closer, error) {
	switch cfg.Backend.Kind {
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path, log)
		if err != nil {
			return nil, nil, err
		}
		return db.Factory(), db, nil

	case config.BackendBigQuery:
		client, err := bigquery.New(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, log)
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return client.Factory(), client, nil

	case config.BackendMemory:
		log.Warn().Msg("Using the in-memory backend; data is lost on restart")
		return inmemory.NewDatabase().Factory(), io.NopCloser(nil), nil
	}
	return nil, nil, fmt.Errorf("openFactory: backend %q cannot serve the API", cfg.Backend.Kind)
}
