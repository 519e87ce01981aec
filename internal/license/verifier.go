package license

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Recorder receives one observation per completed verification.
type Recorder interface {
	RecordVerification(status OutcomeStatus, duration time.Duration)
}

// Verifier decides the verification outcome of a key against a Store.
// It holds no per-call state and is safe for concurrent use.
type Verifier struct {
	store    Store
	now      func() time.Time
	recorder Recorder
	logger   zerolog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(v *Verifier) {
		v.recorder = r
	}
}

// NewVerifier creates a Verifier over store.
func NewVerifier(store Store, logger zerolog.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "license_verifier").Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify looks up key and applies, in order: store failure, not found,
// expiry, status. An empty key returns ErrMissingKey without touching the
// store; every other input yields an Outcome and a nil error.
func (v *Verifier) Verify(ctx context.Context, key string) (Outcome, error) {
	if key == "" {
		return Outcome{}, ErrMissingKey
	}

	start := time.Now()
	outcome := v.decide(ctx, key)
	if v.recorder != nil {
		v.recorder.RecordVerification(outcome.Status, time.Since(start))
	}
	return outcome, nil
}

func (v *Verifier) decide(ctx context.Context, key string) Outcome {
	rec, err := v.store.Lookup(ctx, key)
	if err != nil {
		v.logger.Error().Err(err).Msg("license lookup failed")
		return Failed()
	}
	if rec == nil {
		v.logger.Debug().Msg("license key not found")
		return Invalid()
	}

	expired, err := rec.IsExpired(v.now())
	if err != nil {
		// A record the store cannot describe sensibly is corrupt data.
		v.logger.Error().Err(err).Str("expiry", rec.Expiry).Msg("malformed license record")
		return Failed()
	}
	if expired {
		v.logger.Debug().Str("expiry", rec.Expiry).Msg("license expired")
		return Expired(rec)
	}

	if rec.Status != StatusActive {
		v.logger.Debug().Str("record_status", rec.Status).Msg("license banned")
		return Banned()
	}

	return Active(rec)
}
