package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port            string
	MaxUploadMB     int64
	MaxInflight     int // per tool
	ShutdownTimeout time.Duration
}

// RenderConfig controls PDF to PNG rasterisation.
type RenderConfig struct {
	DPI       int
	ColorMode string // "rgb"|"gray"
}

// JobsConfig defines async job mode, its queue and worker pool.
type JobsConfig struct {
	Enabled      bool
	RunWorker    bool
	RedisURL     string
	Stream       string
	Group        string
	Concurrency  int
	PollInterval time.Duration
	ResultTTL    time.Duration
}

// StorageConfig selects where async inputs and results live.
type StorageConfig struct {
	Backend       string // "local"|"s3"
	LocalDir      string
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Prefix        string
	EncryptionKey string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Server  ServerConfig
	Render  RenderConfig
	Jobs    JobsConfig
	Storage StorageConfig
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// missing .env is normal outside development
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdftools.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdftools",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		MaxUploadMB:     int64(parseInt(getEnv("MAX_UPLOAD_MB", "64"), 64)),
		MaxInflight:     parseInt(getEnv("MAX_INFLIGHT_PER_TOOL", "4"), 4),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Render = RenderConfig{
		DPI:       parseInt(getEnv("RENDER_DPI", "150"), 150),
		ColorMode: strings.ToLower(getEnv("RENDER_COLOR", "rgb")),
	}

	cfg.Jobs = JobsConfig{
		Enabled:      parseBool(getEnv("JOBS_ENABLED", "0")),
		RunWorker:    parseBool(getEnv("RUN_WORKER", "1")),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:pdftools"),
		Group:        getEnv("QUEUE_GROUP", "workers:pdftools"),
		Concurrency:  parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "2s"), 2*time.Second),
		ResultTTL:    parseDuration(getEnv("JOB_RESULT_TTL", "24h"), 24*time.Hour),
	}

	cfg.Storage = StorageConfig{
		Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		LocalDir:      getEnv("STORAGE_DIR", "data"),
		Bucket:        getEnv("AWS_S3_BUCKET", ""),
		Region:        getEnv("AWS_REGION", ""),
		Endpoint:      getEnv("S3_ENDPOINT", ""),
		AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		SecretKey:     getEnv("S3_SECRET_KEY", ""),
		Prefix:        getEnv("S3_PREFIX", "pdftools/"),
		EncryptionKey: getEnv("STORAGE_ENCRYPTION_KEY", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
