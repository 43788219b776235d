// Package config provides configuration management for the LingoRelay server.
// It handles loading and parsing YAML configuration files, and provides
// structured access to application settings including the listen port,
// backend connection details, chunking parameters, and API keys.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default chunking parameters. These mirror the documented contract of the
// chunked translation pipeline and apply whenever the configuration file
// leaves a field unset.
const (
	DefaultPlainMaxChars      = 2000
	DefaultStructuredMaxChars = 1500
	DefaultOverlapChars       = 100
	DefaultLookaheadChars     = 200
	DefaultSegmentDelayMs     = 100
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port" json:"port"`

	// APIKeys is a list of keys for authenticating clients to this server.
	// When empty, authentication is disabled.
	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	// RequestLog enables or disables detailed request logging functionality.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// LoggingLevel sets the logrus level ("debug", "info", "warn", "error").
	LoggingLevel string `yaml:"logging-level,omitempty" json:"logging-level,omitempty"`

	// VerboseLogging enables capture of upstream request/response body
	// snippets in logs. Also settable via the VERBOSE_LOGGING env variable.
	VerboseLogging bool `yaml:"verbose-logging,omitempty" json:"verbose-logging,omitempty"`

	// LogToFile writes logs to a rotated file under LogDir instead of stderr only.
	LogToFile bool `yaml:"log-to-file,omitempty" json:"log-to-file,omitempty"`

	// LogDir is the directory for rotated log files. Default is "logs".
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// Metrics enables Prometheus metrics collection and the /metrics endpoint.
	Metrics bool `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// Models lists the model identifiers this server accepts and advertises
	// via /v1/models. When empty a built-in default set is used.
	Models []string `yaml:"models,omitempty" json:"models,omitempty"`

	// NonStreamKeepAliveInterval controls how often blank lines are emitted
	// while a non-streaming (including chunked) response is being produced.
	// <= 0 disables keep-alives. Value is in seconds.
	NonStreamKeepAliveInterval int `yaml:"nonstream-keepalive-interval,omitempty" json:"nonstream-keepalive-interval,omitempty"`

	// Backend configures the upstream translation service.
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Chunking configures the long-text segmentation pipeline.
	Chunking ChunkingConfig `yaml:"chunking" json:"chunking"`

	// Streaming configures server-side streaming behavior.
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
}

// BackendConfig holds the upstream translation service connection settings.
type BackendConfig struct {
	// BaseURL is the upstream service base URL, e.g. "http://127.0.0.1:9000".
	BaseURL string `yaml:"base-url" json:"base-url"`

	// APIKey is the bearer token sent to the upstream service, if any.
	APIKey string `yaml:"api-key,omitempty" json:"api-key,omitempty"`

	// TimeoutSeconds bounds a single upstream call. <= 0 means no timeout
	// beyond what the transport imposes.
	TimeoutSeconds int `yaml:"timeout-seconds,omitempty" json:"timeout-seconds,omitempty"`
}

// ChunkingConfig holds the segmentation parameters for oversized requests.
// Zero values fall back to the package defaults.
type ChunkingConfig struct {
	// PlainMaxChars is the maximum segment size for plain text.
	PlainMaxChars int `yaml:"plain-max-chars,omitempty" json:"plain-max-chars,omitempty"`

	// StructuredMaxChars is the maximum segment size for subtitle-like text.
	StructuredMaxChars int `yaml:"structured-max-chars,omitempty" json:"structured-max-chars,omitempty"`

	// OverlapChars is the overlap carried between adjacent plain-text segments.
	OverlapChars int `yaml:"overlap-chars,omitempty" json:"overlap-chars,omitempty"`

	// SegmentDelayMs is the courtesy delay between sequential segment calls.
	SegmentDelayMs int `yaml:"segment-delay-ms,omitempty" json:"segment-delay-ms,omitempty"`
}

// StreamingConfig holds server streaming behavior configuration.
type StreamingConfig struct {
	// DisableProxyBuffering when true adds "X-Accel-Buffering: no" header to
	// SSE responses so reverse proxies do not buffer the stream.
	DisableProxyBuffering bool `yaml:"disable-proxy-buffering,omitempty" json:"disable-proxy-buffering,omitempty"`
}

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()
	return cfg, nil
}

// applyEnvOverrides lets deployment environments adjust streaming behavior
// without editing the config file. Environment values win over file values.
func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("STREAMING_DISABLE_PROXY_BUFFERING")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Streaming.DisableProxyBuffering = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("NONSTREAM_KEEPALIVE_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NonStreamKeepAliveInterval = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VERBOSE_LOGGING")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.VerboseLogging = b
		}
	}
}

// ApplyDefaults fills unset fields with their documented default values.
// It is safe to call on an already-defaulted config.
func (c *Config) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8317
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = "logs"
	}
	if c.Chunking.PlainMaxChars <= 0 {
		c.Chunking.PlainMaxChars = DefaultPlainMaxChars
	}
	if c.Chunking.StructuredMaxChars <= 0 {
		c.Chunking.StructuredMaxChars = DefaultStructuredMaxChars
	}
	// A negative overlap explicitly disables it; zero means unset.
	if c.Chunking.OverlapChars == 0 {
		c.Chunking.OverlapChars = DefaultOverlapChars
	}
	if c.Chunking.OverlapChars < 0 {
		c.Chunking.OverlapChars = 0
	}
	// A negative delay explicitly disables the courtesy pause; zero means unset.
	if c.Chunking.SegmentDelayMs == 0 {
		c.Chunking.SegmentDelayMs = DefaultSegmentDelayMs
	}
	if c.Chunking.SegmentDelayMs < 0 {
		c.Chunking.SegmentDelayMs = 0
	}
}
