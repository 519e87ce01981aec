package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StoreUpRecorder records whether the license store answered the last ping.
type StoreUpRecorder interface {
	SetStoreUp(up bool)
}

// MetricsHandler handles Prometheus-compatible metrics endpoints.
type MetricsHandler struct {
	store    StorePinger
	up       StoreUpRecorder
	exporter http.Handler
	logger   zerolog.Logger
}

// NewMetricsHandler creates a new MetricsHandler serving everything in
// gatherer. store and up may be nil.
func NewMetricsHandler(gatherer prometheus.Gatherer, store StorePinger, up StoreUpRecorder, logger zerolog.Logger) *MetricsHandler {
	l := logger.With().Str("component", "metrics_handler").Logger()
	return &MetricsHandler{
		store: store,
		up:    up,
		exporter: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorLog:      promLogger{l},
			ErrorHandling: promhttp.ContinueOnError,
		}),
		logger: l,
	}
}

// RegisterPublicRoutes registers metrics routes that don't require authentication.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", h.Metrics)
}

// Metrics refreshes the store reachability gauge and returns metrics in
// Prometheus exposition format.
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	if h.up != nil {
		up := true
		if h.store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			if err := h.store.Ping(ctx); err != nil {
				up = false
				h.logger.Warn().Err(err).Msg("store ping failed for metrics")
			}
			cancel()
		}
		h.up.SetStoreUp(up)
	}

	h.exporter.ServeHTTP(c.Writer, c.Request)
}

// promLogger adapts zerolog to promhttp's Println-style error log.
type promLogger struct {
	logger zerolog.Logger
}

func (l promLogger) Println(v ...any) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}
