package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration
type Config struct {
	// Backend
	APIURL            string        // Base URL of the analysis backend
	RequestsPerSecond float64       // Client-side throttle (0 = unlimited)
	RequestTimeout    time.Duration // Per-request timeout (0 = none)

	// Input limits
	MaxPayloadChars int // Largest accepted source, in characters (default: 50000)

	// History
	HistoryLimit int // Items kept, newest first (default: 15)
	PreviewLen   int // Characters of code kept in the preview (default: 35)

	// Storage
	StorageBackend string // sqlite, file or memory
	DataDir        string // Where storage, settings and logs live

	// Deep scan
	DeepScanProvider    string        // backend or bedrock
	DeepScanIdleTimeout time.Duration // Abort a stream silent for this long (0 = never)
	BedrockModel        string
	BedrockRegion       string

	// Batch
	BatchConcurrency int

	// Ambient
	LogLevel    string
	LogFile     string
	MetricsAddr string // host:port for /metrics (empty = disabled)
}

const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"

	DeepScanBackend = "backend"
	DeepScanBedrock = "bedrock"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIURL:           "http://localhost:5001",
		MaxPayloadChars:  50000,
		HistoryLimit:     15,
		PreviewLen:       35,
		StorageBackend:   StorageSQLite,
		DataDir:          defaultDataDir(),
		DeepScanProvider: DeepScanBackend,
		BedrockModel:     "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
		BedrockRegion:    "us-east-1",
		BatchConcurrency: 8,
		LogLevel:         "info",
	}
}

// defaultDataDir returns ~/.sentinel, or a relative .sentinel when home is unknown
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentinel"
	}
	return filepath.Join(home, ".sentinel")
}

// newConfigViper builds a viper instance with defaults and env bindings.
// Environment variables use the SENTINEL_ prefix with dots mapped to underscores,
// e.g. deep_scan.provider -> SENTINEL_DEEP_SCAN_PROVIDER.
func newConfigViper() *viper.Viper {
	def := DefaultConfig()
	v := viper.New()

	v.SetDefault("api_url", def.APIURL)
	v.SetDefault("http.requests_per_second", def.RequestsPerSecond)
	v.SetDefault("http.timeout", def.RequestTimeout)
	v.SetDefault("max_payload_chars", def.MaxPayloadChars)
	v.SetDefault("history.limit", def.HistoryLimit)
	v.SetDefault("history.preview_len", def.PreviewLen)
	v.SetDefault("storage.backend", def.StorageBackend)
	v.SetDefault("storage.dir", def.DataDir)
	v.SetDefault("deep_scan.provider", def.DeepScanProvider)
	v.SetDefault("deep_scan.idle_timeout", def.DeepScanIdleTimeout)
	v.SetDefault("bedrock.model", def.BedrockModel)
	v.SetDefault("bedrock.region", def.BedrockRegion)
	v.SetDefault("batch.concurrency", def.BatchConcurrency)
	v.SetDefault("log.level", def.LogLevel)
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.addr", "")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig loads configuration from defaults, an optional config.yaml in the
// data directory (or configPath when set) and SENTINEL_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := newConfigViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("storage.dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		APIURL:              v.GetString("api_url"),
		RequestsPerSecond:   v.GetFloat64("http.requests_per_second"),
		RequestTimeout:      v.GetDuration("http.timeout"),
		MaxPayloadChars:     v.GetInt("max_payload_chars"),
		HistoryLimit:        v.GetInt("history.limit"),
		PreviewLen:          v.GetInt("history.preview_len"),
		StorageBackend:      strings.ToLower(v.GetString("storage.backend")),
		DataDir:             v.GetString("storage.dir"),
		DeepScanProvider:    strings.ToLower(v.GetString("deep_scan.provider")),
		DeepScanIdleTimeout: v.GetDuration("deep_scan.idle_timeout"),
		BedrockModel:        v.GetString("bedrock.model"),
		BedrockRegion:       v.GetString("bedrock.region"),
		BatchConcurrency:    v.GetInt("batch.concurrency"),
		LogLevel:            v.GetString("log.level"),
		LogFile:             v.GetString("log.file"),
		MetricsAddr:         v.GetString("metrics.addr"),
	}

	// The web frontend read its backend from VITE_API_URL; honour it when
	// SENTINEL_API_URL is not set.
	if os.Getenv("SENTINEL_API_URL") == "" {
		if val := os.Getenv("VITE_API_URL"); val != "" {
			cfg.APIURL = val
		}
	}
	if region := os.Getenv("AWS_REGION"); region != "" && os.Getenv("SENTINEL_BEDROCK_REGION") == "" {
		cfg.BedrockRegion = region
	}

	cfg.normalize()
	return cfg, nil
}

// normalize clamps values that would otherwise break invariants
func (c *Config) normalize() {
	def := DefaultConfig()
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.APIURL == "" {
		c.APIURL = def.APIURL
	}
	if c.MaxPayloadChars <= 0 {
		c.MaxPayloadChars = def.MaxPayloadChars
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.PreviewLen <= 0 {
		c.PreviewLen = def.PreviewLen
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = def.BatchConcurrency
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	switch c.StorageBackend {
	case StorageSQLite, StorageFile, StorageMemory:
	default:
		c.StorageBackend = def.StorageBackend
	}
	switch c.DeepScanProvider {
	case DeepScanBackend, DeepScanBedrock:
	default:
		c.DeepScanProvider = def.DeepScanProvider
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "sentinel.log")
	}
}
