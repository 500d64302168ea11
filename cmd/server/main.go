// Package main is the entry point for the turnover cleaning backend: the
// HTTP API, the live event hub and the scheduled calendar sync.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turnover-cleaning/backend/internal/api"
	"github.com/turnover-cleaning/backend/internal/calendar"
	"github.com/turnover-cleaning/backend/internal/config"
	"github.com/turnover-cleaning/backend/internal/events"
	"github.com/turnover-cleaning/backend/internal/metrics"
	"github.com/turnover-cleaning/backend/internal/pricing"
	"github.com/turnover-cleaning/backend/internal/storage"
	"github.com/turnover-cleaning/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// syncPassTimeout bounds a single scheduled sync pass.
const syncPassTimeout = 10 * time.Minute

func main() {
	envFile := flag.String("env", ".env", "Optional .env file to load")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.ServerAddr); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}
	logger.Info("starting turnover cleaning backend", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grid := pricing.DefaultConfig()
	if cfg.PricingFile != "" {
		loaded, err := pricing.LoadConfig(cfg.PricingFile)
		if err != nil {
			return fmt.Errorf("loading pricing grid: %w", err)
		}
		grid = loaded
		logger.Info("loaded pricing grid", "file", cfg.PricingFile)
	}

	return serve(ctx, cfg, logger, grid)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, grid pricing.Config) error {
	engine := pricing.NewEngine(grid)

	// Database
	db, err := storage.NewDB(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	bookings := storage.NewBookingRepository(db)
	jobs := storage.NewJobRepository(db)
	ledger := storage.NewLedgerRepository(db)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// Live events
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	var publisher events.Publisher
	if cfg.RabbitMQURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.EventsExchange, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, broker events will only be logged", "error", err)
		} else {
			publisher = rp
		}
	}
	dispatcher := events.NewDispatcher(websocket.NewEventBroadcaster(hub, logger), publisher, m, logger)
	defer dispatcher.Close()

	// Calendar sync
	fetcher := calendar.NewFetcher(cfg.ICalUserAgent, cfg.FetchTimeout(), logger)
	syncService := calendar.NewSyncService(bookings, ledger, jobs, fetcher, logger,
		calendar.WithNotifier(dispatcher),
		calendar.WithMetrics(m),
	)

	var scheduler *calendar.Scheduler
	if cfg.ICalSyncEnabled {
		scheduler = calendar.NewScheduler(syncService, cfg.ICalSyncSchedule, syncPassTimeout, logger)
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	} else {
		logger.Info("scheduled calendar sync disabled")
	}

	router := api.NewRouter(api.Services{
		DB:          db,
		Bookings:    bookings,
		Jobs:        jobs,
		Pricing:     engine,
		Hub:         hub,
		SyncService: syncService,
		Scheduler:   scheduler,
		Dispatcher:  dispatcher,
		Metrics:     m,
		MetricsPath: cfg.MetricsPath,
		StaticDir:   cfg.StaticDir,
		Logger:      logger,
	})

	// Manual sync passes run inside the request, so the write timeout
	// leaves room for a slow feed on every booking.
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("parsing server address %q: %w", addr, err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
