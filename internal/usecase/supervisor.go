package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/elsbrock/putioarr/internal/metrics"
)

// Supervisor owns the per-transfer watcher goroutines. Every task runs under
// a context derived from the one passed to Go, so cancelling the pipeline
// context stops them, and Wait joins them.
type Supervisor struct {
	Logger *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]int
}

func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{Logger: logger, running: make(map[string]int)}
}

// Go starts fn as a supervised task of the given kind.
func (s *Supervisor) Go(ctx context.Context, kind, name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.running[kind]++
	s.mu.Unlock()
	metrics.ActiveWatchers.WithLabelValues(kind).Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running[kind]--
			s.mu.Unlock()
			metrics.ActiveWatchers.WithLabelValues(kind).Dec()
		}()

		err := fn(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			s.Logger.Debug("supervisor: task cancelled", slog.String("kind", kind), slog.String("task", name))
		default:
			s.Logger.Error("supervisor: task failed",
				slog.String("kind", kind),
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// InFlight returns the number of running tasks of kind.
func (s *Supervisor) InFlight(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[kind]
}

// Wait blocks until all tasks have returned or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
