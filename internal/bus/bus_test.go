package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fish-assistant/internal/models"
)

func TestBus_Subscribe_EmptyTopic(t *testing.T) {
	b := New()
	err := b.Subscribe("", func(context.Context, models.Event) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}
}

func TestBus_Publish_EmptyTopic(t *testing.T) {
	b := New()
	err := b.Publish(context.Background(), models.Event{})
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}
}

func TestBus_Publish_NoSubscribers(t *testing.T) {
	b := New()
	if err := b.Publish(context.Background(), models.New("nobody.listens", nil)); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestBus_Publish_WaitsForAllSubscribers(t *testing.T) {
	b := New()
	var done atomic.Int32

	for _, d := range []time.Duration{5 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond} {
		d := d
		_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
			time.Sleep(d)
			done.Add(1)
			return nil
		})
	}

	if err := b.Publish(context.Background(), models.New("t", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := done.Load(); got != 3 {
		t.Errorf("expected all 3 subscribers finished when publish returned, got %d", got)
	}
}

func TestBus_Publish_RunsHandlersConcurrently(t *testing.T) {
	b := New()
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})

	// Each handler waits for the other to start; sequential dispatch would time out.
	wait := func(own, other chan struct{}) Handler {
		return func(ctx context.Context, ev models.Event) error {
			close(own)
			select {
			case <-other:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("sibling never started")
			}
		}
	}
	_ = b.Subscribe("t", wait(aStarted, bStarted), WithName("a"))
	_ = b.Subscribe("t", wait(bStarted, aStarted), WithName("b"))

	if err := b.Publish(context.Background(), models.New("t", nil)); err != nil {
		t.Fatalf("expected handlers to run concurrently, got %v", err)
	}
}

func TestBus_Publish_FailureDoesNotCancelSiblings(t *testing.T) {
	b := New()
	boom := errors.New("boom")
	var siblingFinished atomic.Bool

	_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
		return boom
	}, WithName("fails"))
	_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
		time.Sleep(30 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		siblingFinished.Store(true)
		return nil
	}, WithName("slow"))

	err := b.Publish(context.Background(), models.New("t", nil))

	var perr *PublishError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if len(perr.Failures) != 1 || perr.Failures[0].Handler != "fails" {
		t.Errorf("expected exactly handler 'fails' to be reported, got %v", perr.Failed())
	}
	if !errors.Is(err, boom) {
		t.Error("expected publish error to unwrap to handler error")
	}
	if !siblingFinished.Load() {
		t.Error("expected sibling handler to finish")
	}
}

func TestBus_Publish_AggregatesAllFailures(t *testing.T) {
	b := New()
	for i := 0; i < 3; i++ {
		_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
			return errors.New("nope")
		})
	}
	_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error { return nil })

	err := b.Publish(context.Background(), models.New("t", nil))
	var perr *PublishError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if len(perr.Failures) != 3 {
		t.Errorf("expected 3 failures, got %d", len(perr.Failures))
	}
}

func TestBus_Publish_RecoversPanic(t *testing.T) {
	b := New()
	var other atomic.Bool
	_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
		panic("kaboom")
	}, WithName("panics"))
	_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
		other.Store(true)
		return nil
	})

	err := b.Publish(context.Background(), models.New("t", nil))
	if !errors.Is(err, ErrHandlerPanic) {
		t.Errorf("expected ErrHandlerPanic, got %v", err)
	}
	if !other.Load() {
		t.Error("expected non-panicking handler to run")
	}
}

func TestBus_Subscribe_DuringPublish(t *testing.T) {
	b := New()
	var late atomic.Int32

	_ = b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
		return b.Subscribe("t", func(ctx context.Context, ev models.Event) error {
			late.Add(1)
			return nil
		})
	})

	if err := b.Publish(context.Background(), models.New("t", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if late.Load() != 0 {
		t.Error("expected handler added mid-publish not to see the in-progress event")
	}

	_ = b.Publish(context.Background(), models.New("t", nil))
	if late.Load() != 1 {
		t.Errorf("expected late handler to see the next publish, got %d", late.Load())
	}
	if b.Subscribers("t") != 3 {
		t.Errorf("expected 3 subscribers, got %d", b.Subscribers("t"))
	}
}

func TestBus_Publish_PassesEventThrough(t *testing.T) {
	b := New()
	src := models.New(models.TopicTranscript, models.Transcript{Text: "hi"})

	var got models.Event
	_ = b.Subscribe(models.TopicTranscript, func(ctx context.Context, ev models.Event) error {
		got = ev
		return nil
	})
	_ = b.Publish(context.Background(), src)

	if got.CorrID != src.CorrID || got.Topic != src.Topic {
		t.Errorf("expected delivered event to match published, got %+v", got)
	}
}

type recordingMirror struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (m *recordingMirror) Export(ctx context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, ev.Topic)
	return m.err
}

func TestBus_Mirror(t *testing.T) {
	m := &recordingMirror{err: errors.New("kafka down")}
	b := New(WithMirror(m))

	if err := b.Publish(context.Background(), models.New("a", nil)); err != nil {
		t.Fatalf("expected mirror failure not to fail publish, got %v", err)
	}
	_ = b.Publish(context.Background(), models.New("b", nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Supervisor().Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.topics) != 2 {
		t.Errorf("expected 2 mirrored events, got %v", m.topics)
	}
}
