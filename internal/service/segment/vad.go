package segment

import "fish-assistant/internal/service/audio"

// Detector classifies a frame as speech or silence.
type Detector interface {
	IsSpeech(f audio.Frame) bool
}

// DetectorFunc adapts a function to a Detector.
type DetectorFunc func(f audio.Frame) bool

// IsSpeech implements Detector.
func (fn DetectorFunc) IsSpeech(f audio.Frame) bool { return fn(f) }

// DefaultThreshold is the normalized RMS above which a frame counts as speech.
const DefaultThreshold = 0.02

// EnergyDetector is a loudness gate on normalized RMS.
type EnergyDetector struct {
	Threshold float64
}

// IsSpeech implements Detector.
func (d EnergyDetector) IsSpeech(f audio.Frame) bool {
	th := d.Threshold
	if th <= 0 {
		th = DefaultThreshold
	}
	return audio.RMS(f.Samples) >= th
}
