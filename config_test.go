package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolateConfig points the data directory at a temp dir and clears variables that
// LoadConfig consults, so a developer's environment cannot leak into assertions.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SENTINEL_STORAGE_DIR", dir)
	for _, key := range []string{
		"SENTINEL_API_URL", "VITE_API_URL", "AWS_REGION", "SENTINEL_BEDROCK_REGION",
		"SENTINEL_MAX_PAYLOAD_CHARS", "SENTINEL_HISTORY_LIMIT", "SENTINEL_STORAGE_BACKEND",
		"SENTINEL_DEEP_SCAN_PROVIDER", "SENTINEL_DEEP_SCAN_IDLE_TIMEOUT", "SENTINEL_HTTP_TIMEOUT",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxPayloadChars != 50000 {
		t.Errorf("MaxPayloadChars = %d, want 50000", cfg.MaxPayloadChars)
	}
	if cfg.HistoryLimit != 15 {
		t.Errorf("HistoryLimit = %d, want 15", cfg.HistoryLimit)
	}
	if cfg.PreviewLen != 35 {
		t.Errorf("PreviewLen = %d, want 35", cfg.PreviewLen)
	}
	if cfg.APIURL != "http://localhost:5001" {
		t.Errorf("APIURL = %q, want http://localhost:5001", cfg.APIURL)
	}
	if cfg.RequestTimeout != 0 {
		t.Errorf("RequestTimeout = %v, want 0 (no timeout)", cfg.RequestTimeout)
	}
	if cfg.DeepScanProvider != DeepScanBackend {
		t.Errorf("DeepScanProvider = %q, want backend", cfg.DeepScanProvider)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := isolateConfig(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.LogFile != filepath.Join(dir, "sentinel.log") {
		t.Errorf("LogFile = %q, want it under the data dir", cfg.LogFile)
	}
	if cfg.StorageBackend != StorageSQLite {
		t.Errorf("StorageBackend = %q, want sqlite", cfg.StorageBackend)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	isolateConfig(t)

	t.Setenv("SENTINEL_API_URL", "http://scanner.internal:8080/")
	t.Setenv("SENTINEL_MAX_PAYLOAD_CHARS", "1000")
	t.Setenv("SENTINEL_HISTORY_LIMIT", "5")
	t.Setenv("SENTINEL_STORAGE_BACKEND", "FILE")
	t.Setenv("SENTINEL_DEEP_SCAN_PROVIDER", "bedrock")
	t.Setenv("SENTINEL_DEEP_SCAN_IDLE_TIMEOUT", "45s")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.APIURL != "http://scanner.internal:8080" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", cfg.APIURL)
	}
	if cfg.MaxPayloadChars != 1000 {
		t.Errorf("MaxPayloadChars = %d, want 1000", cfg.MaxPayloadChars)
	}
	if cfg.HistoryLimit != 5 {
		t.Errorf("HistoryLimit = %d, want 5", cfg.HistoryLimit)
	}
	if cfg.StorageBackend != StorageFile {
		t.Errorf("StorageBackend = %q, want file", cfg.StorageBackend)
	}
	if cfg.DeepScanProvider != DeepScanBedrock {
		t.Errorf("DeepScanProvider = %q, want bedrock", cfg.DeepScanProvider)
	}
	if cfg.DeepScanIdleTimeout != 45*time.Second {
		t.Errorf("DeepScanIdleTimeout = %v, want 45s", cfg.DeepScanIdleTimeout)
	}
}

func TestLoadConfigViteFallback(t *testing.T) {
	isolateConfig(t)
	t.Setenv("VITE_API_URL", "http://legacy:5001")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.APIURL != "http://legacy:5001" {
		t.Errorf("APIURL = %q, want VITE_API_URL fallback", cfg.APIURL)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := isolateConfig(t)

	yaml := "api_url: http://from-file:9000\nhistory:\n  limit: 7\nstorage:\n  backend: memory\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.APIURL != "http://from-file:9000" {
		t.Errorf("APIURL = %q, want value from file", cfg.APIURL)
	}
	if cfg.HistoryLimit != 7 {
		t.Errorf("HistoryLimit = %d, want 7", cfg.HistoryLimit)
	}
	if cfg.StorageBackend != StorageMemory {
		t.Errorf("StorageBackend = %q, want memory", cfg.StorageBackend)
	}
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	isolateConfig(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadConfig() with a missing explicit file should fail")
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := &Config{
		MaxPayloadChars:   -1,
		HistoryLimit:      0,
		StorageBackend:    "redis",
		DeepScanProvider:  "openai",
		RequestsPerSecond: -3,
		DataDir:           "/tmp/x",
	}
	cfg.normalize()

	if cfg.MaxPayloadChars != 50000 {
		t.Errorf("MaxPayloadChars = %d, want default", cfg.MaxPayloadChars)
	}
	if cfg.HistoryLimit != 15 {
		t.Errorf("HistoryLimit = %d, want default", cfg.HistoryLimit)
	}
	if cfg.StorageBackend != StorageSQLite {
		t.Errorf("StorageBackend = %q, want sqlite fallback", cfg.StorageBackend)
	}
	if cfg.DeepScanProvider != DeepScanBackend {
		t.Errorf("DeepScanProvider = %q, want backend fallback", cfg.DeepScanProvider)
	}
	if cfg.RequestsPerSecond != 0 {
		t.Errorf("RequestsPerSecond = %v, want 0", cfg.RequestsPerSecond)
	}
	if cfg.APIURL != "http://localhost:5001" {
		t.Errorf("APIURL = %q, want default", cfg.APIURL)
	}
}
