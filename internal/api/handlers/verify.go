package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LicenseVerifier decides the outcome for a license key.
type LicenseVerifier interface {
	Verify(ctx context.Context, key string) (license.Outcome, error)
}

// VerifyRequest is the GET /verify query. key wins over license_key.
type VerifyRequest struct {
	Key        string
	LicenseKey string
}

func (r VerifyRequest) licenseKey() string {
	if r.Key != "" {
		return r.Key
	}
	return r.LicenseKey
}

// bodyKey picks the key from a decoded POST body. The first of key and
// license_key holding a truthy value wins. A
// winning value that is not a string can never match a stored key, so ok is
// false and the request is answered as invalid.
func bodyKey(body map[string]any) (key string, present, ok bool) {
	for _, field := range []string{"key", "license_key"} {
		v, found := body[field]
		if !found || !truthy(v) {
			continue
		}
		s, isString := v.(string)
		return s, true, isString
	}
	return "", false, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

// VerifyHandler serves the license verification endpoint.
type VerifyHandler struct {
	verifier LicenseVerifier
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewVerifyHandler creates a new VerifyHandler. Each request's store lookup
// is bounded by timeout.
func NewVerifyHandler(verifier LicenseVerifier, timeout time.Duration, logger zerolog.Logger) *VerifyHandler {
	return &VerifyHandler{
		verifier: verifier,
		timeout:  timeout,
		logger:   logger.With().Str("component", "verify_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the verification routes.
func (h *VerifyHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/verify", h.Get)
	r.POST("/verify", h.Post)
}

// Get verifies the key from the query string.
// GET /verify?key=... or GET /verify?license_key=...
func (h *VerifyHandler) Get(c *gin.Context) {
	req := VerifyRequest{
		Key:        c.Query("key"),
		LicenseKey: c.Query("license_key"),
	}
	h.respond(c, req.licenseKey())
}

// Post verifies the key from a JSON object body. A body that is not a JSON
// object carries no key.
// POST /verify
func (h *VerifyHandler) Post(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		h.logger.Debug().Err(err).Msg("unreadable verify body")
		body = nil
	}

	key, present, ok := bodyKey(body)
	if present && !ok {
		h.logger.Debug().Msg("non-string license key in body")
		c.JSON(http.StatusOK, license.Invalid())
		return
	}
	h.respond(c, key)
}

func (h *VerifyHandler) respond(c *gin.Context, key string) {
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	outcome, err := h.verifier.Verify(ctx, key)
	if err != nil {
		if errors.Is(err, license.ErrMissingKey) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "license key is required"})
			return
		}
		h.logger.Error().Err(err).Msg("verification failed")
		outcome = license.Failed()
	}

	c.JSON(outcome.HTTPStatus(), outcome)
}
