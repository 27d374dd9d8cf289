package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fish-assistant/internal/models"
)

type countingMirror struct{ n atomic.Int32 }

func (m *countingMirror) Export(context.Context, models.Event) error {
	m.n.Add(1)
	return nil
}

func TestHalted(t *testing.T) {
	done := make(chan struct{})
	ctx := WithHalt(context.Background(), done)

	if Halted(context.Background()) {
		t.Error("expected a plain context not to be halted")
	}
	if Halted(ctx) {
		t.Error("expected not halted before close")
	}
	close(done)
	if !Halted(ctx) {
		t.Error("expected halted after close")
	}
	if !Halted(context.WithoutCancel(ctx)) {
		t.Error("expected the halt to survive WithoutCancel")
	}
}

func TestBus_Publish_HaltedDropsEvent(t *testing.T) {
	mirror := &countingMirror{}
	b := New(WithMirror(mirror))
	var delivered atomic.Int32
	_ = b.Subscribe("t", func(context.Context, models.Event) error {
		delivered.Add(1)
		return nil
	})

	done := make(chan struct{})
	close(done)
	if err := b.Publish(WithHalt(context.Background(), done), models.New("t", nil)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := b.Supervisor().Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if delivered.Load() != 0 || mirror.n.Load() != 0 {
		t.Errorf("expected nothing delivered or mirrored, got %d/%d", delivered.Load(), mirror.n.Load())
	}
}

func TestBus_Publish_HaltReachesDetachedWork(t *testing.T) {
	b := New()
	var ended atomic.Int32
	_ = b.Subscribe("end", func(context.Context, models.Event) error {
		ended.Add(1)
		return nil
	})

	release := make(chan struct{})
	_ = b.Subscribe("start", func(ctx context.Context, ev models.Event) error {
		return b.Supervisor().Go(ctx, "play", ev.CorrID, func(ctx context.Context) error {
			<-release
			return b.Publish(ctx, models.Derive(ev, "end", nil))
		})
	})

	done := make(chan struct{})
	if err := b.Publish(WithHalt(context.Background(), done), models.New("start", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	close(done)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Supervisor().Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if ended.Load() != 0 {
		t.Errorf("expected the detached publish to be dropped, got %d", ended.Load())
	}
}
