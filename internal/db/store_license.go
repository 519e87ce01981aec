package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/licverify/internal/license"
	"github.com/jackc/pgx/v5"
)

// lookupLicenseSQL reads one license row. expiry_date is cast to text so the
// stored value is returned exactly as the database renders it.
const lookupLicenseSQL = `
	SELECT license_key, expiry_date::text, status, hardware_id
	FROM licenses
	WHERE license_key = $1
	LIMIT 1
`

// Lookup returns the license row for key, or nil if none exists.
func (db *DB) Lookup(ctx context.Context, key string) (*license.Record, error) {
	var rec license.Record
	err := db.Pool.QueryRow(ctx, lookupLicenseSQL, key).Scan(
		&rec.Key, &rec.Expiry, &rec.Status, &rec.HardwareID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get license: %w", license.ErrStoreUnavailable, err)
	}
	return &rec, nil
}
