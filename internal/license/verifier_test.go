package license

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu      sync.Mutex
	records map[string]Record
	err     error
	calls   int
}

func (m *mockStore) Lookup(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

type mockRecorder struct {
	statuses []OutcomeStatus
}

func (m *mockRecorder) RecordVerification(status OutcomeStatus, _ time.Duration) {
	m.statuses = append(m.statuses, status)
}

func strPtr(s string) *string { return &s }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var clockBeforeTestExpiry = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestVerifier(store Store, opts ...Option) *Verifier {
	opts = append([]Option{WithClock(fixedClock(clockBeforeTestExpiry))}, opts...)
	return NewVerifier(store, zerolog.Nop(), opts...)
}

func TestVerify_Scenarios(t *testing.T) {
	store := &mockStore{records: map[string]Record{
		"LSP-TEST-KEY": {Key: "LSP-TEST-KEY", Expiry: "2026-12-31", Status: "active"},
		"ABC":          {Key: "ABC", Expiry: "2020-01-01", Status: "active"},
		"XYZ":          {Key: "XYZ", Expiry: "2099-01-01", Status: "banned"},
		"HW":           {Key: "HW", Expiry: "2099-01-01", Status: "active", HardwareID: strPtr("hw-42")},
		"CASE":         {Key: "CASE", Expiry: "2099-01-01", Status: "Active"},
		"OLD-BANNED":   {Key: "OLD-BANNED", Expiry: "2001-05-05", Status: "inactive"},
	}}
	v := newTestVerifier(store)

	tests := []struct {
		name string
		key  string
		want string
	}{
		{"active test key", "LSP-TEST-KEY", `{"status":"active","expires":"2026-12-31","hardware_id":null}`},
		{"expired", "ABC", `{"status":"expired","expires":"2020-01-01"}`},
		{"banned", "XYZ", `{"status":"banned","message":"License has been banned"}`},
		{"not found", "does-not-exist", `{"status":"invalid","message":"Key not found"}`},
		{"active with hardware id", "HW", `{"status":"active","expires":"2099-01-01","hardware_id":"hw-42"}`},
		{"status match is case sensitive", "CASE", `{"status":"banned","message":"License has been banned"}`},
		{"expiry checked before status", "OLD-BANNED", `{"status":"expired","expires":"2001-05-05"}`},
		{"key match is exact", "lsp-test-key", `{"status":"invalid","message":"Key not found"}`},
		{"key is not trimmed", " LSP-TEST-KEY", `{"status":"invalid","message":"Key not found"}`},
		{"injection-looking key is a miss", "' OR 1=1 --", `{"status":"invalid","message":"Key not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tt.key)
			require.NoError(t, err)

			body, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestVerify_MissingKeySkipsStore(t *testing.T) {
	store := &mockStore{}
	v := newTestVerifier(store)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.Equal(t, 0, store.calls)
}

func TestVerify_StoreFailure(t *testing.T) {
	store := &mockStore{
		err: errors.New("connection refused"),
		records: map[string]Record{
			"LSP-TEST-KEY": {Key: "LSP-TEST-KEY", Expiry: "2099-01-01", Status: "active"},
		},
	}
	v := newTestVerifier(store)

	for _, key := range []string{"LSP-TEST-KEY", "anything"} {
		got, err := v.Verify(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, OutcomeError, got.Status)
		assert.Equal(t, MessageError, got.Message)
	}
}

func TestVerify_MalformedExpiryIsError(t *testing.T) {
	store := &mockStore{records: map[string]Record{
		"BAD": {Key: "BAD", Expiry: "next tuesday", Status: "active"},
	}}
	v := newTestVerifier(store)

	got, err := v.Verify(context.Background(), "BAD")
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, got.Status)
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	store := &mockStore{records: map[string]Record{
		"K": {Key: "K", Expiry: "2026-12-31", Status: "active"},
	}}

	tests := []struct {
		name string
		now  time.Time
		want OutcomeStatus
	}{
		{"day before", time.Date(2026, 12, 30, 23, 59, 59, 0, time.UTC), OutcomeActive},
		{"exact instant", time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), OutcomeActive},
		{"just after midnight", time.Date(2026, 12, 31, 0, 0, 1, 0, time.UTC), OutcomeExpired},
		{"next year", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), OutcomeExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(store, zerolog.Nop(), WithClock(fixedClock(tt.now)))
			got, err := v.Verify(context.Background(), "K")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestVerify_Idempotent(t *testing.T) {
	store := &mockStore{records: map[string]Record{
		"LSP-TEST-KEY": {Key: "LSP-TEST-KEY", Expiry: "2026-12-31", Status: "active"},
	}}
	v := newTestVerifier(store)

	first, err := v.Verify(context.Background(), "LSP-TEST-KEY")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := v.Verify(context.Background(), "LSP-TEST-KEY")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 6, store.calls, "every call must re-read the store")
}

func TestVerify_Concurrent(t *testing.T) {
	store := &mockStore{records: map[string]Record{
		"LSP-TEST-KEY": {Key: "LSP-TEST-KEY", Expiry: "2026-12-31", Status: "active"},
	}}
	v := newTestVerifier(store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := v.Verify(context.Background(), "LSP-TEST-KEY")
			assert.NoError(t, err)
			assert.Equal(t, OutcomeActive, got.Status)
		}()
	}
	wg.Wait()
}

func TestVerify_Recorder(t *testing.T) {
	store := &mockStore{records: map[string]Record{
		"ABC": {Key: "ABC", Expiry: "2020-01-01", Status: "active"},
	}}
	rec := &mockRecorder{}
	v := newTestVerifier(store, WithRecorder(rec))

	_, _ = v.Verify(context.Background(), "ABC")
	_, _ = v.Verify(context.Background(), "nope")
	_, _ = v.Verify(context.Background(), "")

	assert.Equal(t, []OutcomeStatus{OutcomeExpired, OutcomeInvalid}, rec.statuses)
}

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-12-31", time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"2026-12-31T10:30:00Z", time.Date(2026, 12, 31, 10, 30, 0, 0, time.UTC), false},
		{"2026-12-31 10:30:00", time.Date(2026, 12, 31, 10, 30, 0, 0, time.UTC), false},
		{"2026-12-31 10:30:00+00", time.Date(2026, 12, 31, 10, 30, 0, 0, time.UTC), false},
		{"2026-12-31 12:30:00.5+02", time.Date(2026, 12, 31, 10, 30, 0, 500000000, time.UTC), false},
		{"31/12/2026", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExpiry(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseExpiry(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExpiry(%q) unexpected error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseExpiry(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutcome_HTTPStatus(t *testing.T) {
	for _, s := range ValidOutcomeStatuses() {
		want := 200
		if s == OutcomeError {
			want = 500
		}
		if got := (Outcome{Status: s}).HTTPStatus(); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", s, got, want)
		}
	}
}
