package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Bot channel (primary identity)
	BotToken   string `env:"BOT_TOKEN,required"`
	BotAPIBase string `env:"BOT_API_BASE" envDefault:"https://api.telegram.org"`

	// Relay identity (secondary account gateway)
	RelayGatewayURL   string        `env:"RELAY_GATEWAY_URL"`
	RelayGatewayToken string        `env:"RELAY_GATEWAY_TOKEN"`
	RelayChatID       int64         `env:"RELAY_CHAT_ID"`
	RelayPollInterval time.Duration `env:"RELAY_POLL_INTERVAL" envDefault:"5s"`
	RelayWaitTimeout  time.Duration `env:"RELAY_WAIT_TIMEOUT" envDefault:"10m"`

	// Media acquisition
	DirectSizeLimit int64  `env:"DIRECT_SIZE_LIMIT" envDefault:"19922944"` // 19 MiB
	WorkDir         string `env:"WORK_DIR" envDefault:"./work"`
	WatchDir        string `env:"WATCH_DIR"`

	// Speech-to-text
	SttAPIKey         string        `env:"STT_API_KEY,required"`
	SttURL            string        `env:"STT_URL" envDefault:"https://api.deepinfra.com/v1/openai/audio/transcriptions"`
	SttModels         []string      `env:"STT_MODELS" envSeparator:"," envDefault:"openai/whisper-large-v3-turbo,openai/whisper-large-v3,openai/whisper-large-v2"`
	SttTimeout        time.Duration `env:"STT_TIMEOUT" envDefault:"5m"`
	SegmentSeconds    int           `env:"SEGMENT_SECONDS" envDefault:"600"`
	SampleRate        int           `env:"SAMPLE_RATE" envDefault:"16000"`
	AudioChannels     int           `env:"AUDIO_CHANNELS" envDefault:"1"`
	TranscribeWorkers int           `env:"TRANSCRIBE_WORKERS" envDefault:"3"`

	// LLM (formatting and summaries)
	LLMAPIKey  string        `env:"LLM_API_KEY,required"`
	LLMURL     string        `env:"LLM_URL" envDefault:"https://openrouter.ai/api/v1/chat/completions"`
	LLMModels  []string      `env:"LLM_MODELS" envSeparator:"," envDefault:"anthropic/claude-3.5-sonnet,openai/gpt-4o,google/gemini-flash-1.5"`
	LLMReferer string        `env:"LLM_REFERER" envDefault:"https://github.com/videlboga/cyberkitty119-sub001"`
	LLMTitle   string        `env:"LLM_TITLE" envDefault:"transkribator"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"3m"`

	// Pipeline
	PipelineWorkers int           `env:"PIPELINE_WORKERS" envDefault:"2"`
	PipelineQueue   int           `env:"PIPELINE_QUEUE" envDefault:"16"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	CacheCapacity   int           `env:"CACHE_CAPACITY" envDefault:"512"`

	// Artifact storage
	ArtifactDir string   `env:"ARTIFACT_DIR" envDefault:"./artifacts"`
	S3          S3Config `envPrefix:"S3_"`

	// HTTP
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken      string        `env:"AUTH_TOKEN"`
	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"0"` // 0 disables
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"20"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3 artifact backend.
type S3Config struct {
	Bucket         string        `env:"BUCKET"`
	Endpoint       string        `env:"ENDPOINT"`
	Region         string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	Prefix         string        `env:"PREFIX"`
	PresignExpiry  time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	LocalCache     bool          `env:"LOCAL_CACHE" envDefault:"true"`
	CacheRetention time.Duration `env:"CACHE_RETENTION"`
}

// Enabled reports whether the S3 backend is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	WorkDir  string
	WatchDir string
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
	if overrides.WorkDir != "" {
		cfg.WorkDir = overrides.WorkDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	if c.SegmentSeconds <= 0 {
		return fmt.Errorf("SEGMENT_SECONDS must be positive, got %d", c.SegmentSeconds)
	}
	if c.DirectSizeLimit <= 0 {
		return fmt.Errorf("DIRECT_SIZE_LIMIT must be positive, got %d", c.DirectSizeLimit)
	}
	if len(c.SttModels) == 0 {
		return fmt.Errorf("STT_MODELS must list at least one model")
	}
	if len(c.LLMModels) == 0 {
		return fmt.Errorf("LLM_MODELS must list at least one model")
	}
	if c.RelayGatewayURL != "" && c.RelayChatID == 0 {
		return fmt.Errorf("RELAY_CHAT_ID is required when RELAY_GATEWAY_URL is set")
	}
	return nil
}

// RelayEnabled reports whether the oversized-media relay path is configured.
func (c *Config) RelayEnabled() bool { return c.RelayGatewayURL != "" }
