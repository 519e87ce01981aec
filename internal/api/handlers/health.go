package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MacJediWizard/licverify/internal/shutdown"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RootMessage is the plaintext liveness banner served at GET /.
const RootMessage = "✅ JSON License Server is Running!"

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDraining  HealthStatus = "draining"
)

// HealthCheckResult represents the result of a health check.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

// StorePinger is implemented by license stores backed by a remote or on-disk
// resource. Stores that cannot fail (the in-memory accept list) leave it nil.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ShutdownReporter exposes the process shutdown state.
type ShutdownReporter interface {
	IsAccepting() bool
	GetStatus() shutdown.Status
}

// poolReporter is implemented by stores that expose connection pool stats.
type poolReporter interface {
	Health() map[string]any
}

// HealthHandler handles health-related HTTP endpoints.
type HealthHandler struct {
	store     StorePinger
	storeKind string
	shutdown  ShutdownReporter
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. store and shutdown may be nil.
func NewHealthHandler(store StorePinger, storeKind string, shutdownStatus ShutdownReporter, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		storeKind: storeKind,
		shutdown:  shutdownStatus,
		timeout:   5 * time.Second,
		logger:    logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the liveness banner and health routes.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/", h.Root)

	health := r.Group("/health")
	{
		health.GET("", h.Overall)
		health.GET("/store", h.Store)
	}
}

// Root returns a fixed plaintext banner.
// GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.String(http.StatusOK, RootMessage)
}

// Overall returns the overall server health status.
// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result := h.checkStore(ctx)
	response := &HealthResponse{
		Status: result.Status,
		Checks: map[string]*HealthCheckResult{"store": result},
	}

	if h.shutdown != nil && !h.shutdown.IsAccepting() {
		status := h.shutdown.GetStatus()
		response.Status = HealthStatusDraining
		response.Checks["shutdown"] = &HealthCheckResult{
			Status: HealthStatusDraining,
			Details: map[string]any{
				"state":          string(status.State),
				"time_remaining": status.TimeRemaining.String(),
				"message":        status.Message,
			},
		}
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	if result.Status == HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Store returns the license store health status.
// GET /health/store
func (h *HealthHandler) Store(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	result := h.checkStore(ctx)
	response := &HealthResponse{
		Status: result.Status,
		Checks: map[string]*HealthCheckResult{"store": result},
	}

	if result.Status == HealthStatusUnhealthy {
		response.Error = result.Error
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkStore(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{
		Status:  HealthStatusHealthy,
		Details: map[string]any{"kind": h.storeKind},
	}

	if h.store == nil {
		result.Duration = time.Since(start).String()
		return result
	}

	err := h.store.Ping(ctx)
	result.Duration = time.Since(start).String()
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "license store unreachable"
		h.logger.Warn().Err(err).Str("store", h.storeKind).Msg("store health check failed")
		return result
	}

	if pr, ok := h.store.(poolReporter); ok {
		for k, v := range pr.Health() {
			result.Details[k] = v
		}
	}
	return result
}
