package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// recordingCloser appends its name to a shared log when called.
type recordingCloser struct {
	mu    sync.Mutex
	order []string
}

func (r *recordingCloser) closer(name string, err error) CloseFunc {
	return func(_ context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)
		return err
	}
}

func TestManager_NewManager(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())

	if !m.IsAccepting() {
		t.Error("expected manager to accept requests initially")
	}
	if m.GetStatus().State != StateRunning {
		t.Errorf("expected state to be running, got %s", m.GetStatus().State)
	}
}

func TestManager_GetStatus(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	rec := &recordingCloser{}
	m.Register("http", rec.closer("http", nil))
	m.Register("store", rec.closer("store", nil))

	status := m.GetStatus()
	if status.State != StateRunning {
		t.Errorf("expected state running, got %s", status.State)
	}
	if !status.Accepting {
		t.Error("expected accepting to be true")
	}
	if status.Registered != 2 {
		t.Errorf("expected 2 registered closers, got %d", status.Registered)
	}
	if status.Message == "" {
		t.Error("expected a status message")
	}
}

func TestManager_ShutdownOrder(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	rec := &recordingCloser{}
	m.Register("store", rec.closer("store", nil))
	m.Register("metrics", rec.closer("metrics", nil))
	m.Register("http", rec.closer("http", nil))

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"http", "metrics", "store"}
	if len(rec.order) != len(want) {
		t.Fatalf("expected %d closers to run, got %v", len(want), rec.order)
	}
	for i := range want {
		if rec.order[i] != want[i] {
			t.Errorf("closer %d: expected %s, got %s", i, want[i], rec.order[i])
		}
	}

	if m.GetStatus().State != StateComplete {
		t.Errorf("expected state complete, got %s", m.GetStatus().State)
	}
	if m.IsAccepting() {
		t.Error("expected not accepting after shutdown")
	}
	if got := m.GetStatus().Closed; got != 3 {
		t.Errorf("expected 3 closed, got %d", got)
	}
}

func TestManager_ShutdownErrors(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	rec := &recordingCloser{}
	boom := errors.New("boom")
	m.Register("store", rec.closer("store", nil))
	m.Register("http", rec.closer("http", boom))

	err := m.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to wrap boom, got %v", err)
	}
	if len(rec.order) != 2 {
		t.Errorf("expected every closer to run despite failure, got %v", rec.order)
	}
	if got := m.GetStatus().Closed; got != 1 {
		t.Errorf("expected 1 closed, got %d", got)
	}
}

func TestManager_ShutdownOnce(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	rec := &recordingCloser{}
	m.Register("store", rec.closer("store", nil))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Shutdown(context.Background())
		}()
	}
	wg.Wait()

	if len(rec.order) != 1 {
		t.Errorf("expected closer to run once, ran %d times", len(rec.order))
	}
}

func TestManager_RegisterAfterShutdown(t *testing.T) {
	m := NewManager(DefaultConfig(), zerolog.Nop())
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Register("late", func(context.Context) error { return nil })
	if got := m.GetStatus().Registered; got != 0 {
		t.Errorf("expected late registration to be ignored, got %d", got)
	}
}

func TestManager_DrainHonoursTimeout(t *testing.T) {
	config := Config{
		Timeout:      100 * time.Millisecond,
		DrainTimeout: 10 * time.Second,
	}
	m := NewManager(config, zerolog.Nop())

	var sawDeadline bool
	m.Register("store", func(ctx context.Context) error {
		sawDeadline = ctx.Err() != nil
		return nil
	})

	start := time.Now()
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected drain to stop at the shutdown timeout, took %s", elapsed)
	}
	if !sawDeadline {
		t.Error("expected closer to see the expired shutdown context")
	}
}

func TestManager_StatusDuringDrain(t *testing.T) {
	config := Config{
		Timeout:      5 * time.Second,
		DrainTimeout: 200 * time.Millisecond,
	}
	m := NewManager(config, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Shutdown(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.IsAccepting() {
		if time.Now().After(deadline) {
			t.Fatal("manager never stopped accepting")
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := m.GetStatus()
	if status.State != StateDraining {
		t.Errorf("expected state draining during drain window, got %s", status.State)
	}
	if status.StartedAt == nil {
		t.Error("expected started_at to be set")
	}
	if status.TimeRemaining <= 0 {
		t.Error("expected time remaining during drain")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
	if got := m.GetStatus().State; got != StateComplete {
		t.Errorf("expected state complete, got %s", got)
	}
}
