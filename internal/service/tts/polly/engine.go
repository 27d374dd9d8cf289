// Package polly synthesizes speech with Amazon Polly.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"fish-assistant/internal/faults"
	"fish-assistant/internal/models"
	"fish-assistant/internal/service/audio"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config holds Polly settings.
type Config struct {
	Region     string
	Engine     string // standard, neural
	VoiceID    string
	SampleRate int // 8000 or 16000 for PCM output
}

// Engine implements tts.Engine. The AWS client is created on first use so a
// process without credentials can still start.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	client synthClient
}

// New creates an engine with defaults for unset fields.
func New(cfg Config) *Engine {
	return newEngine(cfg, nil)
}

func newEngine(cfg Config, client synthClient) *Engine {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "Joanna"
	}
	if cfg.SampleRate != 8000 {
		cfg.SampleRate = 16000
	}
	return &Engine{cfg: cfg, client: client}
}

// Name implements tts.Engine.
func (e *Engine) Name() string { return "polly" }

// Synthesize implements tts.Engine.
func (e *Engine) Synthesize(ctx context.Context, text, voice string) (models.SynthesizedAudio, error) {
	client, err := e.resolveClient(ctx)
	if err != nil {
		return models.SynthesizedAudio{}, faults.Capability("tts.polly", "client unavailable", err)
	}
	if voice == "" {
		voice = e.cfg.VoiceID
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(e.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	rate := strconv.Itoa(e.cfg.SampleRate)

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   &rate,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice),
	})
	if err != nil {
		return models.SynthesizedAudio{}, mapError(err, voice)
	}
	if out == nil || out.AudioStream == nil {
		return models.SynthesizedAudio{}, &faults.TransportError{Op: "tts.polly", Err: errors.New("empty audio stream")}
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return models.SynthesizedAudio{}, &faults.TransportError{Op: "tts.polly", Err: fmt.Errorf("read audio: %w", err)}
	}

	return models.SynthesizedAudio{
		Audio:       audio.WrapPCM(pcm, e.cfg.SampleRate),
		ContentType: audio.ContentTypeWAV,
		SampleRate:  e.cfg.SampleRate,
		DurationMs:  audio.SamplesDuration(len(pcm)/2, e.cfg.SampleRate).Milliseconds(),
	}, nil
}

func mapError(err error, voice string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &faults.TransportError{Op: "tts.polly", Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ServiceFailureException":
			return &faults.TransportError{Op: "tts.polly", Err: err}
		case "ValidationException":
			return faults.Capability("tts.polly", "unsupported voice "+voice, err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException", "EngineNotSupportedException":
			return &faults.RejectedRequestError{Op: "tts.polly", StatusCode: 400, Body: apiErr.ErrorMessage()}
		}
	}
	return &faults.TransportError{Op: "tts.polly", Err: err}
}

func (e *Engine) resolveClient(ctx context.Context) (synthClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(e.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	e.client = polly.NewFromConfig(awsCfg)
	return e.client, nil
}
