package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fish-assistant/internal/bus"
	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
	"fish-assistant/internal/service/audio"
)

// Limits bounds segments.
type Limits struct {
	TrailingSilence time.Duration // silence that ends an utterance
	MaxDuration     time.Duration // hard cap; forces an emit without silence
	MinSpeech       time.Duration // shorter utterances are dropped as noise; 0 disables
	QueueSize       int           // segments waiting behind the in-flight run; a full queue blocks capture
}

// DefaultLimits returns 600ms trailing silence, a 30s cap, and a queue of 4.
func DefaultLimits() Limits {
	return Limits{
		TrailingSilence: 600 * time.Millisecond,
		MaxDuration:     30 * time.Second,
		QueueSize:       4,
	}
}

// Loop is the conversation loop. One goroutine (Run) reads frames and drives
// the state machine; a second one dispatches finalized segments to the bus so
// that at most one pipeline run is in flight.
type Loop struct {
	source   audio.FrameSource
	detector Detector
	bus      *bus.Bus
	limits   Limits
	ids      *Generator

	state atomic.Int32

	// Owned by the Run goroutine.
	buf        []int16
	sampleRate int
	total      time.Duration
	silence    time.Duration
	speechEnd  int // buf length after the last speech frame

	mu           sync.Mutex
	running      bool
	stopped      bool
	sourceClosed bool
	stopCh       chan struct{}
	halted       bool
	haltCh       chan struct{} // closed by Stop; abandons the in-flight interaction
	cancelRead   context.CancelFunc

	playMu  sync.Mutex
	playing map[string]struct{}
	muted   atomic.Bool

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Loop in IDLE. A nil detector uses EnergyDetector.
func New(source audio.FrameSource, detector Detector, b *bus.Bus, limits Limits) *Loop {
	if detector == nil {
		detector = EnergyDetector{}
	}
	def := DefaultLimits()
	if limits.TrailingSilence <= 0 {
		limits.TrailingSilence = def.TrailingSilence
	}
	if limits.MaxDuration <= 0 {
		limits.MaxDuration = def.MaxDuration
	}
	if limits.QueueSize < 0 {
		limits.QueueSize = 0
	}
	return &Loop{
		source:   source,
		detector: detector,
		bus:      b,
		limits:   limits,
		ids:      NewGenerator(),
		stopCh:   make(chan struct{}),
		haltCh:   make(chan struct{}),
		playing:  make(map[string]struct{}),
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("conversation"),
	}
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Muted reports whether playback is active, which holds off new segments.
func (l *Loop) Muted() bool {
	return l.muted.Load()
}

// Attach subscribes the loop to playback start and end so it does not listen
// to its own voice.
func (l *Loop) Attach() error {
	if err := l.bus.Subscribe(models.TopicPlaybackStart, l.onPlayback(true), bus.WithName("conversation.mute")); err != nil {
		return err
	}
	return l.bus.Subscribe(models.TopicPlaybackEnd, l.onPlayback(false), bus.WithName("conversation.unmute"))
}

func (l *Loop) onPlayback(start bool) bus.Handler {
	return func(_ context.Context, ev models.Event) error {
		l.playMu.Lock()
		defer l.playMu.Unlock()
		if start {
			l.playing[ev.CorrID] = struct{}{}
		} else {
			delete(l.playing, ev.CorrID)
		}
		l.muted.Store(len(l.playing) > 0)
		return nil
	}
}

// transition moves from one state to another, failing with a StateError if
// the loop is no longer in from (typically because Stop won the race).
func (l *Loop) transition(from, to State, action string) error {
	if !validTransition(from, to) || !l.state.CompareAndSwap(int32(from), int32(to)) {
		return &faults.StateError{State: l.State().String(), Action: action}
	}
	return nil
}

// Run consumes frames until the source is exhausted, Stop is called, or ctx
// ends. It returns after the in-flight pipeline run (if any) has finished.
// Segments still queued at end of stream are dispatched; after Stop they are
// discarded, and whatever the in-flight run would still publish is dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return &faults.StateError{State: l.State().String(), Action: "run"}
	}
	if err := l.transition(StateIdle, StateListening, "run"); err != nil {
		l.mu.Unlock()
		return err
	}
	l.running = true
	readCtx, cancel := context.WithCancel(ctx)
	l.cancelRead = cancel
	stopCh := l.stopCh
	haltCh := l.haltCh
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		l.running = false
		l.cancelRead = nil
		l.mu.Unlock()
	}()

	l.logger.Info().
		Dur("trailingSilence", l.limits.TrailingSilence).
		Dur("maxDuration", l.limits.MaxDuration).
		Int("queueSize", l.limits.QueueSize).
		Msg("Conversation loop started")
	l.ux(ctx, models.UXListening)

	queue := make(chan Segment, l.limits.QueueSize)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		l.dispatch(bus.WithHalt(context.WithoutCancel(ctx), haltCh), queue, stopCh)
	}()

	err := l.consume(readCtx, queue)

	close(queue)
	<-dispatched
	l.stop(false)
	l.ux(context.WithoutCancel(ctx), models.UXIdle)

	l.logger.Info().Err(err).Msg("Conversation loop ended")
	return err
}

func (l *Loop) consume(ctx context.Context, queue chan<- Segment) error {
	for {
		if l.State() == StateStopped {
			return nil
		}
		f, err := l.source.ReadFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				if l.State() == StateSpeechDetected {
					l.finalize(queue, ReasonEndOfStream, l.speechEnd)
				}
				return nil
			case l.State() == StateStopped:
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}
		l.metrics.RecordAudioReceived(len(f.Samples))
		l.process(f, queue)
	}
}

// process advances the state machine by one frame.
func (l *Loop) process(f audio.Frame, queue chan<- Segment) {
	speech := l.detector.IsSpeech(f)

	switch l.State() {
	case StateListening:
		if !speech || l.muted.Load() {
			return
		}
		if err := l.transition(StateListening, StateSpeechDetected, "detect speech"); err != nil {
			l.ignore(err)
			return
		}
		l.metrics.RecordSegmentCreated()
		l.buf = make([]int16, 0, len(f.Samples)*64)
		l.sampleRate = f.SampleRate
		l.total = 0
		l.silence = 0
		l.speechEnd = 0
		fallthrough

	case StateSpeechDetected:
		l.buf = append(l.buf, f.Samples...)
		l.total += f.Duration()
		if speech {
			l.silence = 0
			l.speechEnd = len(l.buf)
		} else {
			l.silence += f.Duration()
		}

		switch {
		case l.total >= l.limits.MaxDuration:
			l.metrics.RecordLimitExceeded("segment_duration")
			l.finalize(queue, ReasonMaxDuration, len(l.buf))
		case l.silence >= l.limits.TrailingSilence:
			if err := l.transition(StateSpeechDetected, StateTrailingSilence, "end utterance"); err != nil {
				l.ignore(err)
				return
			}
			l.finalize(queue, ReasonSilence, l.speechEnd)
		}
	}
}

// finalize hands buf[:n] to the dispatcher and starts a fresh buffer.
func (l *Loop) finalize(queue chan<- Segment, reason string, n int) {
	samples := l.buf[:n:n]
	l.buf = nil
	from := l.State()

	if err := l.transition(from, StateListening, "emit segment"); err != nil {
		l.ignore(err)
		return
	}

	seq, corrID := l.ids.Next()
	seg := Segment{Seq: seq, CorrID: corrID, Samples: samples, SampleRate: l.sampleRate, Reason: reason}
	logger := logging.WithSegment(corrID, seq)

	if l.limits.MinSpeech > 0 && seg.Duration() < l.limits.MinSpeech {
		l.metrics.RecordSegmentDropped("too_short")
		logger.Debug().Dur("duration", seg.Duration()).Msg("Segment too short, dropped")
		return
	}

	select {
	case queue <- seg:
	default:
		// Full: hold capture until the dispatcher frees a slot. Frames wait
		// at the source meanwhile.
		l.metrics.RecordLimitExceeded("segment_queue")
		logger.Warn().
			Int("queueSize", l.limits.QueueSize).
			Msg("Segment queue full, waiting for the pipeline")
		select {
		case queue <- seg:
		case <-l.stopCh:
			l.discard(seg)
			return
		}
	}

	l.metrics.RecordSegmentEmitted(seg.Duration().Seconds())
	l.metrics.SetSegmentQueue(len(queue))
	logger.Info().
		Str("reason", reason).
		Dur("duration", seg.Duration()).
		Int("queued", len(queue)).
		Msg("Segment emitted")
}

// dispatch runs queued segments through the bus one at a time.
func (l *Loop) dispatch(ctx context.Context, queue <-chan Segment, stopCh <-chan struct{}) {
	for {
		select {
		case seg, ok := <-queue:
			if !ok {
				return
			}
			l.metrics.SetSegmentQueue(len(queue))
			if l.State() == StateStopped {
				l.discard(seg)
				continue
			}
			l.runPipeline(ctx, seg)
		case <-stopCh:
			for seg := range queue {
				l.discard(seg)
			}
			l.metrics.SetSegmentQueue(0)
			return
		}
	}
}

func (l *Loop) discard(seg Segment) {
	l.metrics.RecordSegmentDropped("stopped")
	logger := logging.WithSegment(seg.CorrID, seg.Seq)
	logger.Debug().Msg("Loop stopped, queued segment discarded")
}

func (l *Loop) runPipeline(ctx context.Context, seg Segment) {
	start := time.Now()
	ev := models.NewWithCorrID(models.TopicAudioRecorded, seg.CorrID, models.AudioRecorded{
		Samples:    seg.Samples,
		SampleRate: seg.SampleRate,
		DurationMs: seg.Duration().Milliseconds(),
		Source:     "conversation",
	})
	err := l.bus.Publish(ctx, ev)
	l.metrics.RecordPipelineRun(time.Since(start).Seconds())

	logger := logging.WithSegment(seg.CorrID, seg.Seq)
	if err != nil {
		logger.Error().Err(err).Msg("Pipeline run reported handler failures")
		return
	}
	logger.Debug().Dur("latency", time.Since(start)).Msg("Pipeline run finished")
}

// Stop moves the loop to STOPPED from any state. It is idempotent, takes
// effect at the next frame boundary (or at once if Run is waiting for a
// frame), and closes the frame source exactly once. Queued segments are
// discarded. A remote or engine call already in flight is not cancelled, but
// its result is dropped: nothing the stopped interaction publishes afterwards
// reaches the bus, so it is never spoken.
func (l *Loop) Stop() {
	l.stop(true)
}

// stop ends the loop. Run calls it with halt false when the source is
// exhausted, so the last interaction still plays out.
func (l *Loop) stop(halt bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if halt && !l.halted {
		l.halted = true
		close(l.haltCh)
	}
	if l.stopped {
		return
	}
	l.stopped = true
	prev := State(l.state.Swap(int32(StateStopped)))
	close(l.stopCh)
	if l.cancelRead != nil {
		l.cancelRead()
	}
	if !l.sourceClosed {
		l.sourceClosed = true
		if err := l.source.Close(); err != nil {
			l.logger.Warn().Err(err).Msg("Closing frame source failed")
		}
	}
	l.logger.Info().Str("from", prev.String()).Msg("Conversation loop stopped")
}

// Reset returns a stopped loop to IDLE with a new frame source. It fails with
// a StateError unless the loop is stopped and Run has returned.
func (l *Loop) Reset(source audio.FrameSource) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || !l.stopped {
		return &faults.StateError{State: l.State().String(), Action: "reset"}
	}
	if err := l.transition(StateStopped, StateIdle, "reset"); err != nil {
		return err
	}
	l.source = source
	l.stopped = false
	l.sourceClosed = false
	l.stopCh = make(chan struct{})
	l.halted = false
	l.haltCh = make(chan struct{})
	l.buf = nil

	// A halted interaction never publishes playback end.
	l.playMu.Lock()
	clear(l.playing)
	l.muted.Store(false)
	l.playMu.Unlock()
	return nil
}

// ignore logs a StateError. These only come from racing Stop and are not
// failures.
func (l *Loop) ignore(err error) {
	l.logger.Debug().Err(err).Msg("Transition skipped")
}

func (l *Loop) ux(ctx context.Context, state string) {
	if err := l.bus.Publish(ctx, models.New(models.TopicUXState, models.UXState{State: state, Note: "conversation"})); err != nil {
		l.logger.Warn().Err(err).Str("state", state).Msg("UX state publish failed")
	}
}
