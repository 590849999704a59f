package source

import (
	"context"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/store"
)

// waitForVar polls the store until the variable appears or the
// deadline passes.
func waitForVar(t *testing.T, st *store.Store, name, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got, ok := st.Get(name); ok && got == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, _ := st.Get(name)
	t.Fatalf("variable %q = %q, want %q within %v", name, got, want, timeout)
}

func TestSupervisorDeliversOutput(t *testing.T) {
	st := store.New()
	sup := NewSupervisor(config.Command{
		Name:     "greet",
		Command:  "echo hello",
		Interval: config.Duration{Duration: time.Hour},
	}, st, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	waitForVar(t, st, "greet:value", "hello", 5*time.Second)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestSupervisorRestartsAfterExit(t *testing.T) {
	st := store.New()
	sup := NewSupervisor(config.Command{
		Name:     "tick",
		Command:  "echo tock",
		Interval: config.Duration{Duration: 20 * time.Millisecond},
	}, st, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if restarts, _ := sup.Stats(); restarts >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	restarts, _ := sup.Stats()
	t.Fatalf("restarts = %d, want >= 2", restarts)
}

// A command that cannot be spawned degrades its own variables only and
// never stops the supervisor loop.
func TestSupervisorToleratesFailingCommand(t *testing.T) {
	st := store.New()
	sup := NewSupervisor(config.Command{
		Name:     "broken",
		Command:  "exit 3",
		Interval: config.Duration{Duration: 10 * time.Millisecond},
	}, st, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := sup.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Run returned %v, want context deadline", err)
	}
	if _, lastErr := sup.Stats(); lastErr == nil {
		t.Error("expected a recorded command error")
	}
}

// A decode failure while the child is still producing output must not
// wedge the supervisor: the child gets killed, the error is recorded
// and the restart loop keeps running even though the pipe would
// otherwise fill up.
func TestSupervisorRestartsAfterDecodeError(t *testing.T) {
	st := store.New()
	// The first line overflows the scanner buffer, which ends decoding
	// while the command keeps writing forever.
	sup := NewSupervisor(config.Command{
		Name:     "chatty",
		Command:  "head -c 2097152 /dev/zero | tr '\\0' a; echo; while true; do echo spam; done",
		Interval: config.Duration{Duration: 10 * time.Millisecond},
	}, st, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if restarts, lastErr := sup.Stats(); restarts >= 1 && lastErr != nil {
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("supervisor did not stop after cancel")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	restarts, lastErr := sup.Stats()
	t.Fatalf("supervisor never recovered: restarts=%d lastErr=%v", restarts, lastErr)
}

func TestManagerRemoveIsolatesCommands(t *testing.T) {
	st := store.New()
	m := NewManager([]config.Command{
		{Name: "keep", Command: "echo keep", Interval: config.Duration{Duration: 30 * time.Millisecond}},
		{Name: "drop", Command: "echo drop", Interval: config.Duration{Duration: 30 * time.Millisecond}},
	}, st, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	waitForVar(t, st, "keep:value", "keep", 5*time.Second)
	waitForVar(t, st, "drop:value", "drop", 5*time.Second)

	m.Remove("drop")

	// The kept command must still be scheduled after the removal.
	st.Set("keep:value", "stale")
	waitForVar(t, st, "keep:value", "keep", 5*time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop after cancel")
	}
}
