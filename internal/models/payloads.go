package models

// AudioRecorded is one captured utterance. Samples are mono PCM16.
type AudioRecorded struct {
	Samples    []int16 `json:"-"`
	SampleRate int     `json:"sample_rate"`
	DurationMs int64   `json:"duration_ms"`
	Source     string  `json:"source"`
}

// Transcript is the output of transcription.
type Transcript struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Intent is the output of classification.
type Intent struct {
	Name       string         `json:"name"`
	Entities   map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
	Text       string         `json:"text"`
}

// SkillRequest asks a skill to handle an intent.
type SkillRequest struct {
	Skill    string         `json:"skill"`
	Intent   string         `json:"intent"`
	Entities map[string]any `json:"entities"`
	Text     string         `json:"text"`
}

// SkillResponse carries the text a skill wants spoken.
type SkillResponse struct {
	Skill     string         `json:"skill"`
	Utterance string         `json:"utterance"`
	Data      map[string]any `json:"data,omitempty"`
}

// TTSRequest asks for speech synthesis.
type TTSRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// SynthesizedAudio is playable audio. Audio holds the encoded bytes
// (WAV unless ContentType says otherwise).
type SynthesizedAudio struct {
	Audio       []byte `json:"-"`
	ContentType string `json:"content_type"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	URL         string `json:"url,omitempty"`
}

// PlaybackStart is published before audio starts playing.
type PlaybackStart struct {
	DurationMs int64  `json:"duration_ms"`
	Target     string `json:"target"`
}

// PlaybackEnd is published once playback finished or failed.
type PlaybackEnd struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StageFailure reports that a stage gave up on an interaction.
type StageFailure struct {
	Stage string `json:"stage"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// UX states published on TopicUXState.
const (
	UXIdle      = "idle"
	UXListening = "listening"
	UXThinking  = "thinking"
	UXSpeaking  = "speaking"
	UXError     = "error"
)

// UXState drives indicator lights and animations.
type UXState struct {
	State string `json:"state"`
	Note  string `json:"note,omitempty"`
}

// MouthEnvelope is a per-hop loudness curve in [0,1] for the animatronic mouth.
type MouthEnvelope struct {
	HopMs  int       `json:"hop_ms"`
	Levels []float64 `json:"levels"`
}
