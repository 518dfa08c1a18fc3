package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"choicetube/config"
	"choicetube/internal/api"
	"choicetube/internal/api/middleware"
	"choicetube/internal/api/stream"
	"choicetube/internal/auth"
	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/logging"
	"choicetube/internal/metrics"
	"choicetube/internal/notify"
	"choicetube/internal/prayer"
	"choicetube/internal/scheduler"
	"choicetube/internal/storage"
	"choicetube/internal/storage/firestore"
	"choicetube/internal/storage/sqlite"
	"choicetube/internal/tracker"
	"choicetube/internal/youtube"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"

	// viewingSessionTTL drops shorts counters of browsers that went away
	viewingSessionTTL = 6 * time.Hour
	// sweepEvery is the number of scheduler ticks between idle sweeps
	sweepEvery = 15
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	// Load configuration
	var cfg *config.Config
	var err error
	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
	slog.SetDefault(logger)
	location := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Firebase is needed for Firestore storage and for Firebase sign-in
	var app *firebase.App
	if cfg.Storage.Driver == config.DriverFirestore || cfg.Auth.Mode == config.AuthFirebase {
		logger.Info("Initializing Firebase app", "project_id", cfg.Firebase.ProjectID)
		app, err = auth.NewFirebaseApp(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.ProjectID)
		if err != nil {
			return err
		}
	}

	store, err := openStorage(ctx, cfg, app, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	store = logging.NewStorageLogger(store, logger)

	verifier, err := newVerifier(ctx, cfg, app)
	if err != nil {
		return err
	}

	var metadata core.MetadataProvider
	if cfg.YouTube.APIKey != "" {
		client, err := youtube.NewMetadataClient(ctx, cfg.YouTube.APIKey, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize YouTube client: %w", err)
		}
		metadata = client
	} else {
		logger.Info("YouTube API key not set, video titles will not be looked up")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, location, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram notifier: %w", err)
		}
		notifier = tg
	}

	times := metrics.InstrumentTimes(prayer.NewClient(cfg.Prayer.APIBaseURL, logger))
	locator := prayer.NewLocator(cfg.Prayer.GeoBaseURL, logger)

	// Core services
	clk := clock.Real{}
	evaluator := core.NewPolicyEvaluator(location)
	videos := core.NewVideoListService(store, metadata, logger)
	settings := core.NewSettingsService(store, store, store, evaluator, logger)
	history := core.NewHistoryService(store, location)
	viewing := core.NewViewingSessions(viewingSessionTTL)

	// Live event stream
	hub := stream.NewHub(logger)
	unlockLimiter := middleware.NewKeyedRateLimiter(
		middleware.PerMinute(cfg.Server.UnlockRatePerMinute), cfg.Server.UnlockRatePerMinute, time.Minute)
	defer unlockLimiter.Stop()

	onUnlock := func(userID string, decision core.Decision, err error) {
		metrics.ObserveUnlock(err)
		notify.Dispatch(notifier, logger, userID, decision, err)
	}
	hub.OnUnlock(onUnlock)
	hub.SetLimiter(unlockLimiter)
	go hub.Run(ctx)

	streamHandler := stream.NewHandler(hub, stream.MonitorConfig{
		Limits:         store,
		Usage:          store,
		Evaluator:      evaluator,
		PrayerSettings: settings,
		Times:          times,
		Clock:          clk,
		Location:       location,
	}, logger)

	// Watch tracking
	trackers := tracker.NewRegistry(store, clk, tracker.RegistryConfig{
		Interval:    time.Duration(cfg.Tracking.FlushIntervalSeconds) * time.Second,
		IdleTimeout: time.Duration(cfg.Tracking.IdleTimeoutSeconds) * time.Second,
		Location:    location,
	}, logger)
	trackers.OnFlush(func(userID string, credited int) {
		metrics.ObserveFlush(userID, credited)
		if credited > 0 {
			hub.Trigger(userID)
		}
	})

	sched := scheduler.NewScheduler(trackers, viewing, clk,
		time.Duration(cfg.Tracking.TickSeconds)*time.Second, sweepEvery, logger)
	go sched.Start()

	router := api.NewRouter(api.RouterConfig{
		Verifier:       verifier,
		Videos:         videos,
		Settings:       settings,
		History:        history,
		Trackers:       trackers,
		Viewing:        viewing,
		Times:          times,
		Locator:        locator,
		Hub:            hub,
		Stream:         streamHandler,
		UnlockLimiter:  unlockLimiter,
		OnUnlock:       onUnlock,
		Clock:          clk,
		Location:       location,
		SessionTTL:     time.Duration(cfg.Auth.SessionTTLHours) * time.Hour,
		SecureCookies:  cfg.Server.SecureCookies,
		MetricsEnabled: cfg.Metrics.Enabled,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			"addr", server.Addr,
			"storage", cfg.Storage.Driver,
			"auth", cfg.Auth.Mode,
			"metrics", cfg.Metrics.Enabled)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, starting graceful shutdown")
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Record what was watched up to now before the store closes
	trackers.StopAll(shutdownCtx)

	logger.Info("Graceful shutdown complete")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, app *firebase.App, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverFirestore:
		logger.Info("Connecting to Firestore", "project_id", cfg.Firebase.ProjectID)
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore: %w", err)
		}
		return firestore.New(client, logger), nil
	default:
		logger.Info("Initializing SQLite database", "path", cfg.Storage.SQLitePath)
		db, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config, app *firebase.App) (auth.Verifier, error) {
	if cfg.Auth.Mode == config.AuthStatic {
		return auth.NewStaticVerifier(cfg.Auth.StaticTokens), nil
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase Auth: %w", err)
	}
	return auth.NewFirebaseVerifier(client), nil
}
