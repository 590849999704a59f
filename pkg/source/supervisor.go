package source

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/barkeep/pkg/config"
	"gitlab.com/tinyland/lab/barkeep/pkg/store"
)

// Supervisor owns the lifecycle of one command: at most one live child
// process at a time, relaunched after the restart interval whenever it
// exits, with a fresh decoder per launch. Failures never propagate
// beyond the command's own variables.
type Supervisor struct {
	cmd config.Command
	st  *store.Store
	log *slog.Logger

	mu       sync.Mutex
	restarts int64
	lastErr  error
}

// NewSupervisor creates a supervisor for one command descriptor.
func NewSupervisor(cmd config.Command, st *store.Store, log *slog.Logger) *Supervisor {
	return &Supervisor{
		cmd: cmd,
		st:  st,
		log: log.With("command", cmd.Name),
	}
}

// Run blocks until ctx is cancelled, spawning and re-spawning the
// child process. It always returns ctx.Err(); a persistent crash loop
// is a degraded-display condition, not a reason to stop.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("command failed", "error", err)
			s.recordError(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cmd.RestartInterval()):
		}
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
	}
}

// runOnce spawns the process and decodes its stdout until the stream
// ends, then reaps the child.
func (s *Supervisor) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", s.cmd.Command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.log.Debug("command started", "pid", cmd.Process.Pid)

	decode := newDecoder(s.cmd, s.log)
	decodeErr := decode(bufio.NewReader(stdout), func(b store.Batch) {
		s.st.Apply(b)
	})
	if decodeErr != nil {
		// Decoding stopped but the child may still be writing into a
		// pipe nobody reads; kill it so Wait cannot hang on a full
		// pipe and the restart loop keeps running.
		_ = cmd.Process.Kill()
	}

	waitErr := cmd.Wait()
	if decodeErr != nil {
		return decodeErr
	}
	return waitErr
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Stats returns restart count and last error for health reporting.
func (s *Supervisor) Stats() (restarts int64, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts, s.lastErr
}

// Manager runs one supervisor per configured command, each on its own
// goroutine with an individually cancellable context so a command can
// be removed without disturbing the others.
type Manager struct {
	st  *store.Store
	log *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	sups    map[string]*Supervisor
}

// NewManager creates a manager over the given command descriptors.
func NewManager(cmds []config.Command, st *store.Store, log *slog.Logger) *Manager {
	m := &Manager{
		st:      st,
		log:     log,
		cancels: make(map[string]context.CancelFunc),
		sups:    make(map[string]*Supervisor),
	}
	for _, cmd := range cmds {
		m.sups[cmd.Name] = NewSupervisor(cmd, st, log)
	}
	return m
}

// Run starts every supervisor and blocks until ctx is cancelled and
// all of them have stopped.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	m.mu.Lock()
	for name, sup := range m.sups {
		cmdCtx, cancel := context.WithCancel(gctx)
		m.cancels[name] = cancel
		sup := sup
		g.Go(func() error {
			err := sup.Run(cmdCtx)
			// A removed or shut-down command is not a group failure.
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	m.mu.Unlock()
	return g.Wait()
}

// Remove terminates one command's child process and stops its
// supervisor. Other commands are unaffected. It is a no-op for unknown
// names.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[name]; ok {
		cancel()
		delete(m.cancels, name)
		delete(m.sups, name)
		m.log.Info("command removed", "command", name)
	}
}

// Stats returns per-command restart counts and last errors.
func (m *Manager) Stats() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.sups))
	for name, sup := range m.sups {
		restarts, _ := sup.Stats()
		out[name] = restarts
	}
	return out
}
