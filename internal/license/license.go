// Package license provides license-key lookup and verification for licverify.
package license

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StatusActive is the only record status that verifies successfully.
// Any other value is treated as banned.
const StatusActive = "active"

var (
	// ErrMissingKey is returned when a verification request carries no key.
	ErrMissingKey = errors.New("license key is required")
	// ErrStoreUnavailable marks failures of the backing store (unreachable or corrupt).
	ErrStoreUnavailable = errors.New("license store unavailable")
)

// Record is a single license as held by a Store.
type Record struct {
	Key        string  `json:"key" yaml:"key"`
	Expiry     string  `json:"expiry" yaml:"expiry"`
	Status     string  `json:"status" yaml:"status"`
	HardwareID *string `json:"hardware_id" yaml:"hardware_id"`
}

// Store looks up license records by key.
//
// Lookup returns (nil, nil) when no record matches key exactly. A non-nil
// error means the backing medium could not answer. Implementations must be
// safe for concurrent use.
type Store interface {
	Lookup(ctx context.Context, key string) (*Record, error)
}

// expiryLayouts are the accepted representations of a stored expiry.
var expiryLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseExpiry converts a stored expiry into the instant after which the
// license is expired. Date-only values denote midnight UTC of that date.
func ParseExpiry(expiry string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, expiry); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiry %q", expiry)
}

// IsExpired reports whether now is strictly after the record's expiry instant.
func (r *Record) IsExpired(now time.Time) (bool, error) {
	at, err := ParseExpiry(r.Expiry)
	if err != nil {
		return false, err
	}
	return now.After(at), nil
}
