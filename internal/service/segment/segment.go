package segment

import (
	"sync/atomic"
	"time"

	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
)

// Emit reasons.
const (
	ReasonSilence     = "silence"
	ReasonMaxDuration = "max_duration"
	ReasonEndOfStream = "end_of_stream"
)

// Segment is one finalized utterance. Samples belong to the segment once it
// is emitted; the loop never touches them again.
type Segment struct {
	Seq        uint64
	CorrID     string
	Samples    []int16
	SampleRate int
	Reason     string
}

// Duration returns the segment's audio length.
func (s Segment) Duration() time.Duration {
	return audio.SamplesDuration(len(s.Samples), s.SampleRate)
}

// Generator numbers segments and mints their correlation ids.
type Generator struct {
	counter atomic.Uint64
}

// NewGenerator creates a Generator starting at 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next sequence number and a fresh corr_id.
func (g *Generator) Next() (uint64, string) {
	return g.counter.Add(1), models.NewCorrID()
}
