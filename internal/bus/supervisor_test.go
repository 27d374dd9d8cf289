package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupervisor_OutlivesSpawner(t *testing.T) {
	s := NewSupervisor()
	var finished atomic.Bool

	parent, cancel := context.WithCancel(context.Background())
	err := s.Go(parent, "playback", "abc", func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		finished.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel() // spawner goes away

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !finished.Load() {
		t.Error("expected task to finish despite parent cancellation")
	}
}

func TestSupervisor_RecoversPanic(t *testing.T) {
	s := NewSupervisor()
	_ = s.Go(context.Background(), "bad", "", func(ctx context.Context) error {
		panic("oops")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("expected panicking task to be recovered and counted done, got %v", err)
	}
}

func TestSupervisor_ShutdownDeadlineCancelsTasks(t *testing.T) {
	s := NewSupervisor()
	cancelled := make(chan struct{})
	_ = s.Go(context.Background(), "stuck", "", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("expected stuck task to observe cancellation")
	}
}

func TestSupervisor_GoAfterShutdown(t *testing.T) {
	s := NewSupervisor()
	_ = s.Shutdown(context.Background())

	err := s.Go(context.Background(), "late", "", func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("expected ErrSupervisorClosed, got %v", err)
	}
}
