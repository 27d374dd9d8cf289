package audio

import (
	"context"
	"io"
	"sync"
	"time"
)

// FrameSource yields audio frames one at a time. ReadFrame returns io.EOF once
// the stream is exhausted.
type FrameSource interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// ChannelSource adapts a channel of frames, such as a capture callback, to a
// FrameSource. Closing the channel ends the stream.
type ChannelSource struct {
	frames <-chan Frame
	once   sync.Once
	onDone func()
}

// NewChannelSource creates a ChannelSource. onClose, if set, runs once on Close.
func NewChannelSource(frames <-chan Frame, onClose func()) *ChannelSource {
	return &ChannelSource{frames: frames, onDone: onClose}
}

// ReadFrame blocks until a frame arrives, the channel closes, or ctx ends.
func (s *ChannelSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return Frame{}, io.EOF
		}
		return f, nil
	}
}

// Close releases the source.
func (s *ChannelSource) Close() error {
	s.once.Do(func() {
		if s.onDone != nil {
			s.onDone()
		}
	})
	return nil
}

// SampleSource splits a fixed buffer of samples into frames. When paced, each
// frame is released at real-time speed, which turns a WAV file into a stand-in
// microphone.
type SampleSource struct {
	samples    []int16
	sampleRate int
	frameSize  int
	pos        int
	pace       bool
	next       time.Time
}

// NewSampleSource creates a SampleSource with frameMs-long frames.
func NewSampleSource(samples []int16, sampleRate, frameMs int, paced bool) *SampleSource {
	size := FrameSize(sampleRate, frameMs)
	if size <= 0 {
		size = 1
	}
	return &SampleSource{samples: samples, sampleRate: sampleRate, frameSize: size, pace: paced}
}

// NewWAVSource decodes a WAV clip into a SampleSource.
func NewWAVSource(data []byte, frameMs int, paced bool) (*SampleSource, error) {
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return NewSampleSource(samples, rate, frameMs, paced), nil
}

// ReadFrame returns the next frame. The final frame may be short.
func (s *SampleSource) ReadFrame(ctx context.Context) (Frame, error) {
	if s.pos >= len(s.samples) {
		return Frame{}, io.EOF
	}
	if s.pace {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		if wait := time.Until(s.next); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return Frame{}, ctx.Err()
			case <-t.C:
			}
		}
	}

	end := min(s.pos+s.frameSize, len(s.samples))
	f := Frame{Samples: s.samples[s.pos:end], SampleRate: s.sampleRate}
	s.pos = end
	s.next = s.next.Add(f.Duration())
	return f, nil
}

// Close is a no-op; the buffer is owned by the caller.
func (s *SampleSource) Close() error { return nil }
