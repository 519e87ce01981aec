// Package app assembles licverify's components from a ServerConfig.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/licverify/internal/config"
	"github.com/MacJediWizard/licverify/internal/db"
	"github.com/MacJediWizard/licverify/internal/kv"
	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/rs/zerolog"
)

// Pinger reports whether a store's backing resource is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is an opened license store together with its lifecycle hooks.
type Store struct {
	license.Store
	Kind config.StoreKind
	// Pinger is nil for stores with no backing resource.
	Pinger Pinger
	close  func()
}

// NewStore wraps an opened license store. pinger and closeFn may be nil.
func NewStore(s license.Store, kind config.StoreKind, pinger Pinger, closeFn func()) *Store {
	return &Store{Store: s, Kind: kind, Pinger: pinger, close: closeFn}
}

// Close releases the store's connections. It is safe to call more than once.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
		s.close = nil
	}
}

// OpenStore opens the store selected by cfg.Store.
func OpenStore(ctx context.Context, cfg config.ServerConfig, logger zerolog.Logger) (*Store, error) {
	switch cfg.Store {
	case config.StoreStatic:
		s := license.NewStaticStore(cfg.StaticKeys, cfg.StaticExpiry)
		logger.Warn().
			Int("keys", s.Len()).
			Str("expiry", cfg.StaticExpiry).
			Msg("using static test license store")
		return NewStore(s, cfg.Store, nil, nil), nil

	case config.StoreFile:
		s := license.NewFileStore(cfg.LicenseFile)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("open license file: %w", err)
		}
		logger.Info().Str("path", cfg.LicenseFile).Msg("using license file store")
		return NewStore(s, cfg.Store, s, nil), nil

	case config.StorePostgres:
		dbCfg := db.DefaultConfig(cfg.DatabaseURL)
		dbCfg.MaxConns = int32(cfg.DBMaxConns)
		dbCfg.MinConns = int32(cfg.DBMinConns)
		database, err := db.New(ctx, dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return NewStore(database, cfg.Store, database, database.Close), nil

	case config.StoreSQLite:
		s, err := db.NewSQLiteStore(ctx, cfg.SQLitePath, cfg.DBMaxConns, logger)
		if err != nil {
			return nil, err
		}
		return NewStore(s, cfg.Store, s, func() {
			if err := s.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close sqlite store")
			}
		}), nil

	case config.StoreRedis:
		s, err := kv.New(ctx, kv.Config{URL: cfg.RedisURL, Prefix: cfg.RedisPrefix}, logger)
		if err != nil {
			return nil, err
		}
		return NewStore(s, cfg.Store, s, func() {
			if err := s.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close redis store")
			}
		}), nil
	}

	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// startupTimeout bounds store connection during startup.
const startupTimeout = 15 * time.Second

// OpenStoreWithTimeout is OpenStore bounded by a startup deadline.
func OpenStoreWithTimeout(ctx context.Context, cfg config.ServerConfig, logger zerolog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	return OpenStore(ctx, cfg, logger)
}
