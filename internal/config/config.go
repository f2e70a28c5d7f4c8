package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	RecordingsDir string `env:"RECORDINGS_DIR" envDefault:"./recordings"`

	// Capture tuning.
	ChunkTimeslice time.Duration `env:"CHUNK_TIMESLICE" envDefault:"250ms"`
	MaxRetries     int           `env:"MAX_RECOVERY_RETRIES" envDefault:"3"`
	StallFloor     time.Duration `env:"STALL_FLOOR" envDefault:"5s"`
	PreferredTypes []string      `env:"PREFERRED_MIME_TYPES" envSeparator:"," envDefault:"video/webm;codecs=vp9,video/webm;codecs=vp8,video/webm"`

	// Soft duration ceilings handed to recording sessions by question type.
	MaxQuestionSeconds   int `env:"MAX_QUESTION_SECONDS" envDefault:"300"`
	MaxAssessmentSeconds int `env:"MAX_ASSESSMENT_SECONDS" envDefault:"3600"`

	// Live speech recognition service. Empty disables transcription and
	// callers fall back to manual transcript entry.
	RecognizerURL     string        `env:"RECOGNIZER_URL"`
	RecognizerTimeout time.Duration `env:"RECOGNIZER_TIMEOUT" envDefault:"10s"`

	// Batch speech-to-text fallback for finished recordings when live
	// recognition was unavailable. Whisper-style HTTP inference endpoint.
	BatchSTTURL     string        `env:"BATCH_STT_URL"`
	BatchSTTAPIKey  string        `env:"BATCH_STT_API_KEY"`
	BatchSTTTimeout time.Duration `env:"BATCH_STT_TIMEOUT" envDefault:"2m"`

	// External video-analysis service the analyze endpoint proxies to.
	AnalyzerURL     string        `env:"ANALYZER_URL"`
	AnalyzerTimeout time.Duration `env:"ANALYZER_TIMEOUT" envDefault:"120s"`

	S3 S3Config `envPrefix:"S3_"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3-compatible artifact backup tier.
type S3Config struct {
	Endpoint       string        `env:"ENDPOINT"`
	Region         string        `env:"REGION" envDefault:"us-east-1"`
	Bucket         string        `env:"BUCKET"`
	Prefix         string        `env:"PREFIX"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	LocalCache     bool          `env:"LOCAL_CACHE" envDefault:"true"`
	PresignExpiry  time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	UploadWorkers  int           `env:"UPLOAD_WORKERS" envDefault:"2"`
	UploadBuffer   int           `env:"UPLOAD_BUFFER" envDefault:"256"`
	ReconcileEvery time.Duration `env:"RECONCILE_EVERY" envDefault:"5m"`
	CacheRetention time.Duration `env:"CACHE_RETENTION"`
	CacheMaxGB     int           `env:"CACHE_MAX_GB"`
}

// Enabled reports whether an S3 backend is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	RecordingsDir string
	RecognizerURL string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.RecordingsDir != "" {
		cfg.RecordingsDir = overrides.RecordingsDir
	}
	if overrides.RecognizerURL != "" {
		cfg.RecognizerURL = overrides.RecognizerURL
	}

	return cfg, nil
}
