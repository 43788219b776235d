package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_ParsesYAMLAndAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: 9100
api-keys:
  - "sk-test"
logging-level: "debug"
metrics: true
backend:
  base-url: "http://127.0.0.1:9000/"
  api-key: "upstream-key"
  timeout-seconds: 30
chunking:
  plain-max-chars: 1800
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("Port = %d", cfg.Port)
	}
	if len(cfg.APIKeys) != 1 || cfg.APIKeys[0] != "sk-test" {
		t.Fatalf("APIKeys = %v", cfg.APIKeys)
	}
	if cfg.Backend.BaseURL != "http://127.0.0.1:9000/" {
		t.Fatalf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutSeconds != 30 {
		t.Fatalf("Backend.TimeoutSeconds = %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Chunking.PlainMaxChars != 1800 {
		t.Fatalf("PlainMaxChars = %d", cfg.Chunking.PlainMaxChars)
	}
	// Unset fields fall back to the documented defaults.
	if cfg.Chunking.StructuredMaxChars != DefaultStructuredMaxChars {
		t.Fatalf("StructuredMaxChars = %d", cfg.Chunking.StructuredMaxChars)
	}
	if cfg.Chunking.OverlapChars != DefaultOverlapChars {
		t.Fatalf("OverlapChars = %d", cfg.Chunking.OverlapChars)
	}
	if cfg.Chunking.SegmentDelayMs != DefaultSegmentDelayMs {
		t.Fatalf("SegmentDelayMs = %d", cfg.Chunking.SegmentDelayMs)
	}
	if cfg.LogDir != "logs" {
		t.Fatalf("LogDir = %q", cfg.LogDir)
	}
}

func TestLoad_DefaultPort(t *testing.T) {
	path := writeConfig(t, `backend: {base-url: "http://localhost:9000"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8317 {
		t.Fatalf("Port = %d, want default 8317", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "port: [not a port")
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestApplyDefaults_NegativeValuesDisable(t *testing.T) {
	cfg := &Config{
		Chunking: ChunkingConfig{SegmentDelayMs: -1, OverlapChars: -1},
	}
	cfg.ApplyDefaults()
	if cfg.Chunking.SegmentDelayMs != 0 {
		t.Fatalf("SegmentDelayMs = %d, want 0 (disabled)", cfg.Chunking.SegmentDelayMs)
	}
	if cfg.Chunking.OverlapChars != 0 {
		t.Fatalf("OverlapChars = %d, want 0 (disabled)", cfg.Chunking.OverlapChars)
	}
}
