// Package api provides the HTTP API for the licverify server.
package api

import (
	"time"

	"github.com/MacJediWizard/licverify/internal/api/handlers"
	"github.com/MacJediWizard/licverify/internal/api/middleware"
	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	// AllowedOrigins for CORS. Empty means all origins are allowed.
	AllowedOrigins []string
	// VerifyTimeout bounds each request's store lookup.
	VerifyTimeout time.Duration
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	// StoreKind names the configured license store for /health and /version.
	StoreKind string
	// Gatherer backs GET /metrics. Nil serves an empty registry.
	Gatherer prometheus.Gatherer
	// Shutdown turns /health to 503 once draining starts. Optional.
	Shutdown handlers.ShutdownReporter
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{},
		VerifyTimeout:  5 * time.Second,
		MaxBodyBytes:   1 << 20,
		StoreKind:      "static",
		Version:        "dev",
		Commit:         "unknown",
		BuildDate:      "unknown",
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router. store and up may be nil.
func NewRouter(
	cfg Config,
	verifier handlers.LicenseVerifier,
	store handlers.StorePinger,
	up handlers.StoreUpRecorder,
	logger zerolog.Logger,
) *Router {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.CustomRecovery(r.handlePanic))
	r.Engine.Use(middleware.RequestID())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.SecurityHeaders())
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, logger))
	r.Engine.Use(middleware.BodyLimitMiddleware(cfg.MaxBodyBytes))

	healthHandler := handlers.NewHealthHandler(store, cfg.StoreKind, cfg.Shutdown, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	verifyHandler := handlers.NewVerifyHandler(verifier, cfg.VerifyTimeout, logger)
	verifyHandler.RegisterPublicRoutes(r.Engine)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}
	metricsHandler := handlers.NewMetricsHandler(gatherer, store, up, logger)
	metricsHandler.RegisterPublicRoutes(r.Engine)

	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, cfg.StoreKind, logger)
	versionHandler.RegisterPublicRoutes(r.Engine)

	r.logger.Info().Str("store", cfg.StoreKind).Msg("API router initialized")
	return r
}

// handlePanic turns a handler panic into the generic error outcome.
func (r *Router) handlePanic(c *gin.Context, err any) {
	r.logger.Error().
		Interface("panic", err).
		Str("request_id", middleware.GetRequestID(c)).
		Str("path", c.Request.URL.Path).
		Msg("handler panicked")
	outcome := license.Failed()
	c.AbortWithStatusJSON(outcome.HTTPStatus(), outcome)
}
