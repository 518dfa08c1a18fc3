package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"choicetube/internal/api/handlers"
	"choicetube/internal/api/middleware"
	"choicetube/internal/api/stream"
	"choicetube/internal/auth"
	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/enforce"
	"choicetube/internal/metrics"
	"choicetube/internal/tracker"
)

// DefaultLoginURL is returned to unauthenticated clients
const DefaultLoginURL = "/login"

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Verifier auth.Verifier
	Videos   *core.VideoListService
	Settings *core.SettingsService
	History  *core.HistoryService
	Trackers *tracker.Registry
	Viewing  *core.ViewingSessions
	Times    enforce.TimesSource
	Locator  handlers.Locator

	// Optional: live event stream. Without it unlocks and status are
	// answered from stored data only.
	Hub    *stream.Hub
	Stream *stream.Handler

	// Optional: bounds unlock attempts per user
	UnlockLimiter *middleware.KeyedRateLimiter
	// Optional: observes unlocks handled without a live monitor
	OnUnlock func(userID string, decision core.Decision, err error)

	Clock          clock.Clock
	Location       *time.Location
	SessionTTL     time.Duration
	SecureCookies  bool
	LoginURL       string
	MetricsEnabled bool
	Logger         *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LoginURL == "" {
		config.LoginURL = DefaultLoginURL
	}

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.NoiseFilter(config.Logger))
	if config.MetricsEnabled {
		router.Use(metrics.Middleware())
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	router.Use(middleware.ContentType())
	router.Use(middleware.BodyLogging(config.Logger))

	// Health check (no auth)
	var active func() int
	if config.Trackers != nil {
		active = config.Trackers.Active
	}
	healthHandler := handlers.NewHealthHandler(active)
	router.GET("/health", healthHandler.GetHealth)

	v1 := router.Group("/v1")
	v1.Use(middleware.ViewingSession(config.SecureCookies))

	authHandler := handlers.NewAuthHandler(
		config.Verifier,
		config.Videos,
		config.SessionTTL,
		config.SecureCookies,
		config.Logger,
	)
	v1.POST("/auth/session", authHandler.CreateSession)
	v1.DELETE("/auth/session", authHandler.DeleteSession)

	// Interfaces must stay nil, not typed-nil, when there is no hub
	var (
		live     handlers.LivePolicy
		reloader handlers.PrayerReloader
	)
	if config.Hub != nil {
		live = config.Hub
		reloader = config.Hub
	}

	authed := v1.Group("")
	authed.Use(middleware.UserAuth(config.Verifier, config.LoginURL))
	{
		// Video list endpoints
		videosHandler := handlers.NewVideosHandler(config.Videos, config.Logger)
		authed.GET("/videos", videosHandler.ListVideos)
		authed.POST("/videos", videosHandler.AddVideo)
		authed.POST("/videos/share", videosHandler.ShareVideo)

		// Settings endpoints
		settingsHandler := handlers.NewSettingsHandler(
			config.Settings,
			config.Locator,
			reloader,
			config.Logger,
		)
		authed.GET("/settings/screen-time", settingsHandler.GetScreenTime)
		authed.PUT("/settings/screen-time", settingsHandler.PutScreenTime)
		authed.GET("/settings/prayer", settingsHandler.GetPrayer)
		authed.PUT("/settings/prayer", settingsHandler.PutPrayer)
		authed.POST("/settings/prayer/locate", settingsHandler.LocatePrayer)

		// Screen time endpoints
		screenTimeHandler := handlers.NewScreenTimeHandler(
			config.Settings,
			live,
			config.OnUnlock,
			config.Logger,
		)
		authed.GET("/screen-time/usage", screenTimeHandler.GetUsage)
		authed.GET("/screen-time/status", screenTimeHandler.GetStatus)
		unlock := []gin.HandlerFunc{screenTimeHandler.Unlock}
		if config.UnlockLimiter != nil {
			unlock = append([]gin.HandlerFunc{config.UnlockLimiter.Middleware()}, unlock...)
		}
		authed.POST("/screen-time/unlock", unlock...)

		// Prayer endpoints
		prayerHandler := handlers.NewPrayerHandler(
			config.Settings,
			config.Times,
			config.Clock,
			config.Location,
			config.Logger,
		)
		authed.GET("/prayer/times", prayerHandler.GetTimes)
		authed.GET("/prayer/status", prayerHandler.GetStatus)

		// Watch tracking endpoints
		watchHandler := handlers.NewWatchHandler(
			config.Trackers,
			config.Viewing,
			config.Settings,
			live,
			config.Clock,
			config.Logger,
		)
		authed.POST("/watch", watchHandler.StartWatch)
		authed.POST("/watch/:id/state", watchHandler.UpdateWatch)
		authed.POST("/watch/:id/stop", watchHandler.StopWatch)

		// History endpoints
		historyHandler := handlers.NewHistoryHandler(config.History, config.Clock, config.Logger)
		authed.GET("/history", historyHandler.ListHistory)
		authed.GET("/history/stats", historyHandler.GetStats)

		if config.Stream != nil {
			authed.GET("/stream", config.Stream.Serve)
		}
	}

	return router
}
