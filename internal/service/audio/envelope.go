package audio

import "math"

// EnvelopeHopMs is the hop between mouth envelope levels.
const EnvelopeHopMs = 20

const (
	noiseGate   = 200.0   // RMS below this is silence
	fullOpenRMS = 10000.0 // RMS at which the mouth is fully open
)

// Envelope computes one level in [0,1] per hopMs of audio from the raw int16
// RMS of each hop.
func Envelope(samples []int16, sampleRate, hopMs int) []float64 {
	hop := FrameSize(sampleRate, hopMs)
	if hop <= 0 {
		return nil
	}
	levels := make([]float64, 0, len(samples)/hop+1)
	for start := 0; start < len(samples); start += hop {
		end := min(start+hop, len(samples))
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(end-start))
		if rms < noiseGate {
			levels = append(levels, 0)
			continue
		}
		levels = append(levels, math.Min(1, (rms-noiseGate)/(fullOpenRMS-noiseGate)))
	}
	return levels
}
