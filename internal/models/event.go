// Package models defines the event envelope and the payloads exchanged between
// pipeline stages.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pipeline topics, in causal order.
const (
	TopicAudioRecorded = "audio.recorded"
	TopicTranscript    = "stt.transcript"
	TopicIntent        = "nlu.intent"
	TopicSkillRequest  = "skill.request"
	TopicSkillResponse = "skill.response"
	TopicTTSRequest    = "tts.request"
	TopicTTSAudio      = "tts.audio"
	TopicPlaybackStart = "audio.playback.start"
	TopicPlaybackEnd   = "audio.playback.end"
)

// Side-channel topics.
const (
	TopicUXState        = "ux.state"
	TopicMouthEnvelope  = "anim.mouth.envelope"
	TopicPipelineFailed = "pipeline.failed"
)

// PipelineTopics lists the main chain for one utterance.
var PipelineTopics = []string{
	TopicAudioRecorded,
	TopicTranscript,
	TopicIntent,
	TopicSkillRequest,
	TopicSkillResponse,
	TopicTTSRequest,
	TopicTTSAudio,
	TopicPlaybackStart,
	TopicPlaybackEnd,
}

// Event is the envelope carried by the bus. Events are passed by value and
// never mutated after publish.
type Event struct {
	Topic   string `json:"topic"`
	TsMs    int64  `json:"ts_ms"`
	CorrID  string `json:"corr_id"`
	Payload any    `json:"payload"`
}

// NewCorrID returns a fresh correlation id: a random UUID as 32 hex chars.
func NewCorrID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// New starts a new interaction with a fresh corr_id.
func New(topic string, payload any) Event {
	return NewWithCorrID(topic, NewCorrID(), payload)
}

// NewWithCorrID builds an event for an interaction whose corr_id was assigned
// elsewhere, such as on another machine.
func NewWithCorrID(topic, corrID string, payload any) Event {
	return Event{
		Topic:   topic,
		TsMs:    time.Now().UnixMilli(),
		CorrID:  corrID,
		Payload: payload,
	}
}

// Derive builds an event caused by parent. The corr_id is copied unchanged.
func Derive(parent Event, topic string, payload any) Event {
	return NewWithCorrID(topic, parent.CorrID, payload)
}

// PayloadAs extracts a typed payload, accepting either a value or a pointer.
func PayloadAs[T any](ev Event) (T, error) {
	switch p := ev.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("event %s: unexpected payload type %T", ev.Topic, ev.Payload)
}
