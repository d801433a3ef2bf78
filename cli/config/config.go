package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Endpoint defaults.
const (
	DefaultBackendPrefix = "ws://127.0.0.1:8000"
	DefaultEndpointPath  = "/api/edit"
	// BackendPrefixEnv overrides the default backend prefix.
	BackendPrefixEnv = "OVERDUB_BACKEND_PREFIX"
)

// DefaultMaxFileSize is the largest video the edit server accepts (512 MiB).
const DefaultMaxFileSize int64 = 512 << 20

// Config represents an overdub.yaml configuration file.
// All values are optional and act as defaults for overdub flags.
// CLI flags always override config values.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Session  SessionConfig  `yaml:"session"`
	Journal  JournalConfig  `yaml:"journal"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// EndpointConfig locates the edit server.
type EndpointConfig struct {
	// BackendPrefix is the ws:// or wss:// origin of the edit server.
	BackendPrefix string `yaml:"backend_prefix"`
	// Path is the edit endpoint path on that origin.
	Path string `yaml:"path"`
}

// SessionConfig holds session timeouts and upload limits.
type SessionConfig struct {
	ConnectTimeout Duration `yaml:"connect_timeout"`
	AckTimeout     Duration `yaml:"ack_timeout"`
	ResultTimeout  Duration `yaml:"result_timeout"`
	MaxFileSize    int64    `yaml:"max_file_size"`
}

// JournalConfig holds session journal storage defaults.
type JournalConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds completion adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// ResolveBackendPrefix picks the backend prefix by precedence:
// flag, then config file, then $OVERDUB_BACKEND_PREFIX, then the default.
// cfg may be nil.
func ResolveBackendPrefix(flag string, cfg *Config) string {
	if flag != "" {
		return flag
	}
	if cfg != nil && cfg.Endpoint.BackendPrefix != "" {
		return cfg.Endpoint.BackendPrefix
	}
	if env := os.Getenv(BackendPrefixEnv); env != "" {
		return env
	}
	return DefaultBackendPrefix
}

// EditAddress joins a backend prefix and endpoint path into the edit
// endpoint address. An empty path uses DefaultEndpointPath.
func EditAddress(prefix, path string) (string, error) {
	u, err := url.Parse(prefix)
	if err != nil {
		return "", fmt.Errorf("invalid backend prefix %q: %w", prefix, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid backend prefix %q: scheme must be ws or wss", prefix)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid backend prefix %q: missing host", prefix)
	}
	if path == "" {
		path = DefaultEndpointPath
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// MaxFileSize returns the configured upload limit, or the default.
func (c *Config) MaxFileSize() int64 {
	if c == nil || c.Session.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return c.Session.MaxFileSize
}
