package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/sharedstate/internal/errors"
	"github.com/vango-dev/sharedstate/pkg/sharedstate"
)

// FileNames are the configuration files LoadFromDir looks for, in order.
var FileNames = []string{"sharedstate.json", "sharedstate.toml", "sharedstate.yaml", "sharedstate.yml"}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverS3     = "s3"
)

const (
	// DefaultOrigin is the origin name used when none is configured.
	DefaultOrigin = "default"

	// DefaultDir is the file storage directory.
	DefaultDir = ".sharedstate"

	// DefaultHubAddr is the hub listen address.
	DefaultHubAddr = ":7070"
)

// Config is the complete sharedstate configuration.
type Config struct {
	// Namespace prefixes every durable record.
	Namespace string `json:"namespace,omitempty" toml:"namespace" yaml:"namespace,omitempty"`

	// Origin names the group of contexts that share records and events.
	Origin string `json:"origin,omitempty" toml:"origin" yaml:"origin,omitempty"`

	// Storage selects and configures the durable medium.
	Storage StorageConfig `json:"storage,omitempty" toml:"storage" yaml:"storage,omitempty"`

	// Hub configures the event relay.
	Hub HubConfig `json:"hub,omitempty" toml:"hub" yaml:"hub,omitempty"`

	// Log configures the process logger.
	Log LogConfig `json:"log,omitempty" toml:"log" yaml:"log,omitempty"`

	// Metrics configures Prometheus instrumentation of storage.
	Metrics MetricsConfig `json:"metrics,omitempty" toml:"metrics" yaml:"metrics,omitempty"`

	// path stores where the config was loaded from.
	path string
}

// StorageConfig configures the durable medium.
type StorageConfig struct {
	// Driver is memory, file or s3.
	Driver string `json:"driver,omitempty" toml:"driver" yaml:"driver,omitempty"`

	// Dir is the record directory of the file driver.
	Dir string `json:"dir,omitempty" toml:"dir" yaml:"dir,omitempty"`

	// Bucket is the S3 bucket.
	Bucket string `json:"bucket,omitempty" toml:"bucket" yaml:"bucket,omitempty"`

	// Prefix is prepended to S3 object keys.
	Prefix string `json:"prefix,omitempty" toml:"prefix" yaml:"prefix,omitempty"`

	// Region is the S3 region.
	Region string `json:"region,omitempty" toml:"region" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint (MinIO, localstack).
	Endpoint string `json:"endpoint,omitempty" toml:"endpoint" yaml:"endpoint,omitempty"`

	// PathStyle forces path-style S3 addressing.
	PathStyle bool `json:"pathStyle,omitempty" toml:"pathStyle" yaml:"pathStyle,omitempty"`

	// Timeout bounds each storage operation, as a Go duration ("5s").
	Timeout string `json:"timeout,omitempty" toml:"timeout" yaml:"timeout,omitempty"`

	timeout time.Duration
}

// TimeoutDuration returns the parsed Timeout. Valid after Validate.
func (s StorageConfig) TimeoutDuration() time.Duration {
	return s.timeout
}

// HubConfig configures the event relay.
type HubConfig struct {
	// Addr is the listen address of `sharedstate hub`.
	Addr string `json:"addr,omitempty" toml:"addr" yaml:"addr,omitempty"`

	// URL is the hub clients connect to. Empty disables the hub client.
	URL string `json:"url,omitempty" toml:"url" yaml:"url,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty" toml:"level" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" toml:"format" yaml:"format,omitempty"`
}

// SlogLevel returns the configured level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MetricsConfig configures storage metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" toml:"enabled" yaml:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty" toml:"namespace" yaml:"namespace,omitempty"`
}

// New returns a configuration with every default applied.
func New() *Config {
	return &Config{
		Namespace: sharedstate.DefaultNamespace,
		Origin:    DefaultOrigin,
		Storage: StorageConfig{
			Driver: DriverFile,
			Dir:    DefaultDir,
		},
		Hub: HubConfig{
			Addr: DefaultHubAddr,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "sharedstate",
		},
	}
}

// Load reads the configuration at path, choosing the decoder by extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.New("E301").WithDetail(path).Wrap(err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, errors.New("E302").WithDetailf("%q", ext)
	}
	if err != nil {
		return nil, errors.New("E301").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads the first of FileNames present in dir, or the
// defaults when there is none.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Validate fills empty fields with defaults and rejects invalid values.
func (c *Config) Validate() error {
	d := New()
	if c.Namespace == "" {
		c.Namespace = d.Namespace
	}
	if c.Origin == "" {
		c.Origin = d.Origin
	}
	if c.Hub.Addr == "" {
		c.Hub.Addr = d.Hub.Addr
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}

	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = DriverFile
		fallthrough
	case DriverFile:
		if c.Storage.Dir == "" {
			c.Storage.Dir = DefaultDir
		}
	case DriverMemory:
	case DriverS3:
		if c.Storage.Bucket == "" {
			return errors.New("E301").
				WithDetail("storage.bucket is required for the s3 driver")
		}
	default:
		return errors.New("E301").
			WithDetailf("invalid storage driver: %s (must be memory, file, or s3)", c.Storage.Driver)
	}

	if c.Storage.Timeout != "" {
		d, err := time.ParseDuration(c.Storage.Timeout)
		if err != nil || d < 0 {
			return errors.New("E301").WithDetailf("invalid storage.timeout: %q", c.Storage.Timeout)
		}
		c.Storage.timeout = d
	}

	switch c.Log.Level {
	case "":
		c.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return errors.New("E301").WithDetailf("invalid log level: %s", c.Log.Level)
	}

	switch c.Log.Format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
	default:
		return errors.New("E301").WithDetailf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	return nil
}
