package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
)

// ErrSupervisorClosed is returned by Go after Shutdown started.
var ErrSupervisorClosed = errors.New("supervisor closed")

// TaskFunc is detached work.
type TaskFunc func(ctx context.Context) error

// Supervisor runs detached tasks and guarantees each one is tracked until it
// finishes and that its outcome is logged, even after the spawning handler
// returned. Tasks inherit the spawner's context values but not its
// cancellation; they are cancelled only when Shutdown gives up waiting.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor() *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("supervisor"),
	}
}

// Go starts fn in its own goroutine.
func (s *Supervisor) Go(parent context.Context, name, corrID string, fn TaskFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(s.ctx, cancel)

	s.metrics.RecordTaskStart()
	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()

		start := time.Now()
		err := runTask(ctx, fn)
		s.metrics.RecordTaskEnd(name, err)

		ev := s.logger.Debug()
		if err != nil {
			ev = s.logger.Error().Err(err)
		}
		ev.Str("task", name).
			Str("corrId", corrID).
			Dur("duration", time.Since(start)).
			Msg("Task finished")
	}()
	return nil
}

func runTask(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Shutdown stops accepting tasks and waits for running ones. If ctx expires
// first, running tasks are cancelled and ctx.Err() is returned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn().Msg("Shutdown deadline reached, cancelled running tasks")
		return ctx.Err()
	}
}
