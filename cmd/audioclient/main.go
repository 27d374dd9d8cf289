// Command audioclient exercises a server-mode runtime over HTTP: it sends a
// WAV file to the transcribe route and, with -say, writes synthesized speech
// to a file.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/remote"
	"fish-assistant/internal/service/audio"
	"fish-assistant/internal/service/stt"
	"fish-assistant/internal/service/tts"
)

func main() {
	audioFile := flag.String("audio", "", "Path to a PCM16 WAV file to transcribe")
	serverURL := flag.String("server", "http://localhost:8000", "Server base URL")
	modelSize := flag.String("model", "tiny", "Model size hint sent with the audio")
	say := flag.String("say", "", "Text to synthesize")
	voice := flag.String("voice", "", "Voice for -say")
	out := flag.String("out", "reply.wav", "Where -say writes the synthesized audio")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-attempt timeout")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	if *audioFile == "" && *say == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	target := remote.Target{BaseURL: *serverURL, Timeout: *timeout}

	if *audioFile != "" {
		data, err := os.ReadFile(*audioFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open audio file")
		}
		samples, rate, err := audio.DecodeWAV(data)
		if err != nil {
			log.Fatal().Err(err).Msg("Not a PCM16 WAV file")
		}
		log.Info().
			Int("sampleRate", rate).
			Dur("duration", audio.SamplesDuration(len(samples), rate)).
			Msg("WAV file loaded")

		client, err := remote.New("stt", target, remote.DefaultRetryPolicy())
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid server URL")
		}
		transcript, err := stt.NewRemote(client, *modelSize).Transcribe(ctx, stt.Request{Samples: samples, SampleRate: rate})
		if err != nil {
			log.Fatal().Err(err).Msg("Transcription failed")
		}
		log.Info().Str("text", transcript.Text).Msg("Transcript received")
	}

	if *say != "" {
		client, err := remote.New("tts", target, remote.DefaultRetryPolicy())
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid server URL")
		}
		clip, err := tts.NewRemote(client, *voice).Synthesize(ctx, *say, *voice)
		if err != nil {
			log.Fatal().Err(err).Msg("Synthesis failed")
		}
		if err := os.WriteFile(*out, clip.Audio, 0o644); err != nil {
			log.Fatal().Err(err).Msg("Failed to write audio")
		}
		log.Info().
			Str("file", *out).
			Int64("durationMs", clip.DurationMs).
			Str("url", clip.URL).
			Msg("Synthesized audio written")
	}
}
