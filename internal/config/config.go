// Package config loads the runtime configuration once at startup.
//
// Values come from the process environment, optionally seeded from a .env file.
// Nothing else in the module reads the environment; the resulting Config is
// passed by pointer into every constructor.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Deployment modes.
const (
	ModeFull   = "full"
	ModeServer = "server"
	ModeClient = "client"
)

// Capability modes.
const (
	CapabilityLocal  = "local"
	CapabilityRemote = "remote"
)

// Config is the complete runtime configuration.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	TTS           TTSConfig
	Playback      PlaybackConfig
	Retry         RetryConfig
	SegmentLimits SegmentLimitsConfig
	VAD           VADConfig
	Kafka         KafkaConfig
	Chat          ChatConfig
	Polly         PollyConfig
	Storage       StorageConfig
	Workers       WorkersConfig
	Observability ObservabilityConfig
}

// ServiceConfig describes the process itself.
type ServiceConfig struct {
	Principal   string
	Mode        string // full, server, client
	HTTPHost    string
	HTTPPort    string
	GRPCPort    string
	MetricsAddr string
	AudioInput  string // path to a WAV file replayed through the conversation loop; empty disables it
	RateLimit   int    // requests per minute per IP on the HTTP surface; 0 disables
}

// STTConfig selects and configures the transcription capability.
type STTConfig struct {
	Mode         string // local, remote
	Engine       string // mock, google, openai
	ServerURL    string
	ModelSize    string
	Timeout      time.Duration
	LanguageCode string
	SampleRateHz int
}

// TTSConfig selects and configures the synthesis capability.
type TTSConfig struct {
	Mode         string // local, remote
	Engine       string // tone, polly
	ServerURL    string
	Voice        string
	Timeout      time.Duration
	ResponseMode string // wav, url
}

// PlaybackConfig selects where synthesized audio is played.
type PlaybackConfig struct {
	Mode      string // local, remote
	ClientURL string
	Timeout   time.Duration
}

// RetryConfig is the retry policy shared by remote adapters.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// SegmentLimitsConfig bounds conversation loop segments.
type SegmentLimitsConfig struct {
	TrailingSilence time.Duration
	MaxDuration     time.Duration
	MinSpeech       time.Duration
	QueueSize       int
}

// VADConfig configures the energy voice-activity detector.
type VADConfig struct {
	SampleRateHz int
	FrameMs      int
	Threshold    float64
}

// KafkaConfig configures the optional event mirror.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

// ChatConfig configures the OpenAI-compatible chat skill and Whisper engine.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// PollyConfig configures the Polly synthesis engine.
type PollyConfig struct {
	Region string
	Engine string
}

// StorageConfig configures where synthesized audio is parked for audio_url responses.
type StorageConfig struct {
	Backend   string // memory, minio
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// WorkersConfig bounds CPU-bound engine work.
type WorkersConfig struct {
	Size int
}

// ObservabilityConfig configures logging.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
// Unparseable values fall back to their defaults.
func Load() *Config {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-fish-assistant")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			Mode:        envOrDefault("DEPLOYMENT_MODE", ModeFull),
			HTTPHost:    envOrDefault("SERVER_HOST", "0.0.0.0"),
			HTTPPort:    envOrDefault("SERVER_PORT", "8000"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			AudioInput:  os.Getenv("AUDIO_INPUT"),
			RateLimit:   envOrDefaultInt("HTTP_RATE_LIMIT", 120),
		},
		STT: STTConfig{
			Mode:         envOrDefault("STT_MODE", CapabilityLocal),
			Engine:       envOrDefault("STT_ENGINE", "mock"),
			ServerURL:    envOrDefault("STT_SERVER_URL", "http://localhost:8000"),
			ModelSize:    envOrDefault("STT_MODEL_SIZE", "tiny"),
			Timeout:      envOrDefaultDuration("STT_TIMEOUT", 30*time.Second),
			LanguageCode: envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz: envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
		},
		TTS: TTSConfig{
			Mode:         envOrDefault("TTS_MODE", CapabilityLocal),
			Engine:       envOrDefault("TTS_ENGINE", "tone"),
			ServerURL:    envOrDefault("TTS_SERVER_URL", "http://localhost:8000"),
			Voice:        os.Getenv("TTS_VOICE"),
			Timeout:      envOrDefaultDuration("TTS_TIMEOUT", 30*time.Second),
			ResponseMode: envOrDefault("TTS_RESPONSE_MODE", "wav"),
		},
		Playback: PlaybackConfig{
			Mode:      envOrDefault("PLAYBACK_MODE", CapabilityLocal),
			ClientURL: envOrDefault("CLIENT_SERVER_URL", "http://localhost:8001"),
			Timeout:   envOrDefaultDuration("PLAYBACK_TIMEOUT", 10*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: envOrDefaultInt("REMOTE_MAX_ATTEMPTS", 3),
			BaseDelay:   envOrDefaultDuration("REMOTE_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    envOrDefaultDuration("REMOTE_MAX_DELAY", 8*time.Second),
		},
		SegmentLimits: SegmentLimitsConfig{
			TrailingSilence: envOrDefaultDuration("SEGMENT_TRAILING_SILENCE", 600*time.Millisecond),
			MaxDuration:     envOrDefaultDuration("SEGMENT_MAX_DURATION", 30*time.Second),
			MinSpeech:       envOrDefaultDuration("SEGMENT_MIN_SPEECH", 0),
			QueueSize:       envOrDefaultInt("SEGMENT_QUEUE_SIZE", 4),
		},
		VAD: VADConfig{
			SampleRateHz: envOrDefaultInt("VAD_SAMPLE_RATE_HZ", 16000),
			FrameMs:      envOrDefaultInt("VAD_FRAME_MS", 30),
			Threshold:    envOrDefaultFloat("VAD_THRESHOLD", 0.02),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:     envOrDefault("KAFKA_TOPIC_EVENTS", "assistant.events"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Chat: ChatConfig{
			APIKey:  os.Getenv("CHAT_API_KEY"),
			BaseURL: envOrDefault("CHAT_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:   envOrDefault("CHAT_MODEL", "llama-3.1-8b-instant"),
		},
		Polly: PollyConfig{
			Region: envOrDefault("POLLY_REGION", "us-east-1"),
			Engine: envOrDefault("POLLY_ENGINE", "neural"),
		},
		Storage: StorageConfig{
			Backend:   envOrDefault("AUDIO_STORE", "memory"),
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    envOrDefault("MINIO_BUCKET", "tts-audio"),
			UseSSL:    envOrDefaultBool("MINIO_USE_SSL", false),
			URLExpiry: envOrDefaultDuration("MINIO_URL_EXPIRY", 15*time.Minute),
		},
		Workers: WorkersConfig{
			Size: envOrDefaultInt("WORKER_POOL_SIZE", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
