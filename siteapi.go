// Package siteapi is the backend for the Nordmedica marketing site: a JSON
// API serving the public React frontend with a Google-OAuth-gated admin
// surface, a file-backed blog store, validated image uploads, and a
// Google Analytics reporting proxy.
package siteapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/nordmedica/siteapi/analytics"
	"github.com/nordmedica/siteapi/blog"
	"github.com/nordmedica/siteapi/media"
)

// App wires together the stores, handlers, and middleware.
type App struct {
	Config   *Config
	Echo     *echo.Echo
	Logger   *zap.Logger
	Sessions *SessionStore
	Gate     *Gate
	Blog     *blog.Store
	Media    *media.Store

	loginLimiter *LoginLimiter
	stopSweeper  func()
}

// New creates an App with the given configuration. Call Setup (directly or
// via Start) before serving requests.
func New(cfg *Config, logger *zap.Logger) *App {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return &App{
		Config: cfg,
		Echo:   e,
		Logger: logger,
	}
}

// Setup validates required config and initializes stores, middleware, and
// routes. It is separate from Start so tests can serve the Echo instance
// without binding a port.
func (a *App) Setup() error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("siteapi: SessionSecret is required")
	}

	sessions, err := NewSessionStore(a.Config.SessionDBPath, a.Config.SessionSecret,
		a.Config.SessionTTL, a.Config.CookieSecure, a.Logger)
	if err != nil {
		return fmt.Errorf("siteapi: init session store: %w", err)
	}
	a.Sessions = sessions
	a.stopSweeper = sessions.StartSweeper(time.Hour)

	mediaStore, err := media.NewStore(a.Config.UploadDir, a.Config.AllowedFileTypes,
		a.Config.MaxFileSize, a.Logger)
	if err != nil {
		return fmt.Errorf("siteapi: init media store: %w", err)
	}
	a.Media = mediaStore

	blogStore, err := blog.NewStore(a.Config.BlogDataFile, mediaStore, a.Logger)
	if err != nil {
		return fmt.Errorf("siteapi: init blog store: %w", err)
	}
	a.Blog = blogStore

	a.Gate = NewGate(a.Config)
	a.loginLimiter = NewLoginLimiter(10, time.Minute)

	if !a.Config.OAuthConfigured() {
		a.Logger.Warn("Google OAuth credentials not configured; authentication will not work")
	}

	a.setupMiddleware()
	a.setupRoutes()
	return nil
}

// Start initializes the app and serves until the listener stops.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.Logger.Info("server starting",
		zap.String("addr", a.Config.Addr),
		zap.String("environment", a.Config.Environment),
		zap.String("upload_dir", a.Config.UploadDir),
		zap.String("frontend_url", a.Config.FrontendURL),
	)
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Auth surface.
	e.GET("/auth/login", a.handleLogin)
	e.GET("/auth/google", a.handleLogin) // legacy alias used by the SPA
	e.GET("/auth/callback", a.handleCallback)
	e.GET("/auth/google/callback", a.handleCallback)
	e.GET("/auth/status", a.handleStatus)
	e.GET("/auth/logout", a.handleLogout)
	e.GET("/auth/refresh", a.handleRefresh, a.Gate.RequireAuthenticated)
	e.GET("/auth/failure", a.handleAuthFailure)

	// Blog CMS: public reads, admin writes.
	blogHandler := blog.NewHandler(a.Blog, a.Logger)
	blogHandler.RegisterRoutes(e.Group("/api/blog", a.Gate.PublicReadAdminWrite))

	// Uploads: metadata API plus static serving of the raw files.
	mediaHandler := media.NewHandler(a.Media, a.Logger)
	mediaHandler.RegisterRoutes(e.Group("/api/upload"), a.Gate.RequireAdmin)
	e.Static("/uploads", a.Media.Dir())

	// Analytics proxy, admin only.
	var client *analytics.Client
	if a.Config.AnalyticsConfigured() {
		var err error
		client, err = analytics.NewClient(a.Config.GAPropertyID, a.Config.GACredentialsJSON, a.Logger)
		if err != nil {
			a.Logger.Error("analytics client init failed", zap.Error(err))
			client = nil
		}
	} else {
		a.Logger.Warn("Google Analytics not configured; analytics endpoints will report 503")
	}
	analyticsHandler := analytics.NewHandler(client, 5*time.Minute, a.Logger)
	analyticsHandler.RegisterRoutes(e.Group("/api/analytics", a.Gate.RequireAdmin))

	// Crawler surface, generated from the post collection.
	e.GET("/rss.xml", a.handleRSS)
	e.GET("/sitemap.xml", a.handleSitemap)

	e.GET("/health", a.handleHealth)
}

// handleHealth is the unauthenticated liveness probe.
func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": a.Config.Environment,
	})
}

// Close releases background goroutines and store handles.
func (a *App) Close() error {
	if a.stopSweeper != nil {
		a.stopSweeper()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.Sessions != nil {
		return a.Sessions.Close()
	}
	return nil
}
