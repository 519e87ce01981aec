// Package shutdown provides graceful shutdown coordination for the licverify server.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State represents the current shutdown state.
type State string

const (
	// StateRunning indicates the server is running normally.
	StateRunning State = "running"
	// StateDraining indicates the server stopped accepting new requests.
	StateDraining State = "draining"
	// StateClosing indicates registered resources are being released.
	StateClosing State = "closing"
	// StateComplete indicates shutdown is complete.
	StateComplete State = "complete"
)

// CloseFunc releases one resource. It should return promptly once ctx is done.
type CloseFunc func(ctx context.Context) error

// Status represents the current shutdown status.
type Status struct {
	State         State         `json:"state"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	TimeRemaining time.Duration `json:"time_remaining,omitempty"`
	Registered    int           `json:"registered"`
	Closed        int           `json:"closed"`
	Accepting     bool          `json:"accepting"`
	Message       string        `json:"message,omitempty"`
}

// Config holds configuration for the shutdown manager.
type Config struct {
	// Timeout is the maximum time for the whole shutdown.
	Timeout time.Duration

	// DrainTimeout is how long to keep serving after a signal before closing
	// resources, so load balancers can notice the instance is leaving.
	DrainTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      15 * time.Second,
		DrainTimeout: 0,
	}
}

type closer struct {
	name string
	fn   CloseFunc
}

// Manager runs registered closers in reverse registration order exactly once.
type Manager struct {
	config       Config
	logger       zerolog.Logger
	mu           sync.RWMutex
	state        State
	startedAt    *time.Time
	closers      []closer
	closed       int32
	accepting    atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewManager creates a new shutdown manager.
func NewManager(config Config, logger zerolog.Logger) *Manager {
	m := &Manager{
		config: config,
		logger: logger.With().Str("component", "shutdown_manager").Logger(),
		state:  StateRunning,
	}
	m.accepting.Store(true)
	return m
}

// Register adds a closer. Closers registered later run first. Registering
// after shutdown has started has no effect.
func (m *Manager) Register(name string, fn CloseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		m.logger.Warn().Str("closer", name).Msg("register after shutdown started, ignoring")
		return
	}
	m.closers = append(m.closers, closer{name: name, fn: fn})
}

// IsAccepting returns true until shutdown begins.
func (m *Manager) IsAccepting() bool {
	return m.accepting.Load()
}

// GetStatus returns the current shutdown status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:      m.state,
		StartedAt:  m.startedAt,
		Registered: len(m.closers),
		Closed:     int(atomic.LoadInt32(&m.closed)),
		Accepting:  m.accepting.Load(),
	}

	if m.startedAt != nil {
		if remaining := m.config.Timeout - time.Since(*m.startedAt); remaining > 0 {
			status.TimeRemaining = remaining
		}
	}

	switch m.state {
	case StateRunning:
		status.Message = "Server is running normally"
	case StateDraining:
		status.Message = "Server is draining, not accepting new requests"
	case StateClosing:
		status.Message = "Releasing server resources"
	case StateComplete:
		status.Message = "Shutdown complete"
	}
	return status
}

// Shutdown drains, then runs every closer, bounded by the configured timeout
// and ctx. Later calls return the first call's result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.doShutdown(ctx)
	})
	return m.shutdownErr
}

func (m *Manager) doShutdown(ctx context.Context) error {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	now := time.Now()
	m.mu.Lock()
	m.startedAt = &now
	m.state = StateDraining
	closers := make([]closer, len(m.closers))
	copy(closers, m.closers)
	m.mu.Unlock()

	m.accepting.Store(false)
	m.logger.Info().
		Dur("timeout", m.config.Timeout).
		Dur("drain_timeout", m.config.DrainTimeout).
		Int("closers", len(closers)).
		Msg("initiating graceful shutdown")

	if m.config.DrainTimeout > 0 {
		drain := time.NewTimer(m.config.DrainTimeout)
		select {
		case <-drain.C:
		case <-ctx.Done():
			drain.Stop()
			m.logger.Warn().Msg("shutdown deadline reached during drain phase")
		}
	}

	m.mu.Lock()
	m.state = StateClosing
	m.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		logger := m.logger.With().Str("closer", c.name).Logger()

		start := time.Now()
		if err := c.fn(ctx); err != nil {
			logger.Error().Err(err).Msg("closer failed")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		atomic.AddInt32(&m.closed, 1)
		logger.Debug().Dur("duration", time.Since(start)).Msg("closed")
	}

	m.mu.Lock()
	m.state = StateComplete
	m.mu.Unlock()

	m.logger.Info().
		Dur("duration", time.Since(now)).
		Int("closed", int(atomic.LoadInt32(&m.closed))).
		Int("failed", len(errs)).
		Msg("graceful shutdown complete")

	return errors.Join(errs...)
}
