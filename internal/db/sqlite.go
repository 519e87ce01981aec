package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// SQLiteStore serves license lookups from a SQLite database file holding a
// licenses table with the same columns as the PostgreSQL store.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

const sqliteLookupSQL = `
	SELECT license_key, CAST(expiry_date AS TEXT), status, hardware_id
	FROM licenses
	WHERE license_key = ?
	LIMIT 1
`

// NewSQLiteStore opens the SQLite database at path. maxConns bounds the
// number of open connections; values below one mean one.
func NewSQLiteStore(ctx context.Context, path string, maxConns int, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if maxConns < 1 {
		maxConns = 1
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}

	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("sqlite license store opened")
	return s, nil
}

// Lookup implements license.Store.
func (s *SQLiteStore) Lookup(ctx context.Context, key string) (*license.Record, error) {
	var rec license.Record
	var hardwareID sql.NullString
	err := s.db.QueryRowContext(ctx, sqliteLookupSQL, key).Scan(
		&rec.Key, &rec.Expiry, &rec.Status, &hardwareID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get license: %w", license.ErrStoreUnavailable, err)
	}
	if hardwareID.Valid {
		rec.HardwareID = &hardwareID.String
	}
	return &rec, nil
}

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	s.logger.Info().Msg("sqlite license store closed")
	return err
}
