// Package audio provides PCM frames, WAV encoding, frame sources, and the
// loudness envelope used to animate the mouth.
package audio

import (
	"math"
	"time"
)

// Frame is a slice of mono PCM16 samples at SampleRate.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the frame's playback length.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration converts a sample count to a duration.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// FrameSize returns the samples per frame for a rate and frame length.
func FrameSize(sampleRate, frameMs int) int {
	return sampleRate * frameMs / 1000
}

// RMS returns the root-mean-square level of samples normalized to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
