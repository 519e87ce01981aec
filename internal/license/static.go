package license

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// DefaultTestKey is the accept-key served in test mode when none are configured.
const DefaultTestKey = "LSP-TEST-KEY"

// DefaultTestExpiry is the canned expiry of test-mode records.
const DefaultTestExpiry = "2026-12-31"

// StaticStore answers lookups from a fixed in-memory table. It is read-only
// after construction, so concurrent lookups need no locking.
type StaticStore struct {
	records map[string]Record
}

// NewStaticStore returns a StaticStore that accepts each of keys as an active
// license expiring at expiry with no hardware binding.
func NewStaticStore(keys []string, expiry string) *StaticStore {
	if expiry == "" {
		expiry = DefaultTestExpiry
	}
	records := make(map[string]Record, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		records[k] = Record{Key: k, Expiry: expiry, Status: StatusActive}
	}
	return &StaticStore{records: records}
}

// NewStaticStoreFromRecords returns a StaticStore holding the given records.
// When keys repeat, the first record wins.
func NewStaticStoreFromRecords(records []Record) *StaticStore {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		if _, ok := m[r.Key]; ok {
			continue
		}
		m[r.Key] = r
	}
	return &StaticStore{records: m}
}

// Lookup implements Store.
func (s *StaticStore) Lookup(_ context.Context, key string) (*Record, error) {
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Len returns the number of records held.
func (s *StaticStore) Len() int {
	return len(s.records)
}

// FileStore reads license records from a JSON file on every lookup, so edits
// to the file take effect on the next request.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by the JSON array at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Lookup implements Store. The first record with a matching key wins.
func (s *FileStore) Lookup(_ context.Context, key string) (*Record, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Key == key {
			return &records[i], nil
		}
	}
	return nil, nil
}

// Ping verifies the file can be read and parsed.
func (s *FileStore) Ping(_ context.Context) error {
	_, err := s.load()
	return err
}

func (s *FileStore) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read license file: %w", ErrStoreUnavailable, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: parse license file %s: %w", ErrStoreUnavailable, s.path, err)
	}
	return records, nil
}
