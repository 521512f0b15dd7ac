// Package config resolves server settings from defaults, an optional YAML
// file, and CLOUDMOCK_* environment variables, in that order of precedence.
// Command-line flags are layered on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"cloudmock/internal/blob"
	"cloudmock/internal/core"
	"cloudmock/internal/presets"
)

// MetricsBackend selects the request metrics exporter.
type MetricsBackend string

const (
	MetricsPrometheus MetricsBackend = "prometheus"
	MetricsExpvar     MetricsBackend = "expvar"
	MetricsNone       MetricsBackend = "none"
)

// Config is the complete server configuration.
type Config struct {
	Addr     string              `yaml:"addr"`
	LogLevel string              `yaml:"log_level"`
	Storage  core.StorageOptions `yaml:"storage"`
	Blob     blob.Config         `yaml:"blob"`
	Preset   presets.Selection   `yaml:"preset"`
	// Fixtures are YAML seed files, each exposed as a fixtures:<name> populator.
	Fixtures      []string       `yaml:"fixtures"`
	ResponseDelay time.Duration  `yaml:"response_delay"`
	EventDelay    time.Duration  `yaml:"event_delay"`
	Metrics       MetricsBackend `yaml:"metrics"`
	// VirtualClock starts sessions on a manually advanced clock.
	VirtualClock bool `yaml:"virtual_clock"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Addr:          ":8080",
		LogLevel:      "info",
		Storage:       core.StorageOptions{Driver: core.StorageMemory},
		Blob:          blob.Config{Driver: blob.DriverMemory},
		Preset:        presets.Selection{Baseline: presets.DefaultBaseline},
		ResponseDelay: 1500 * time.Millisecond,
		EventDelay:    2 * time.Second,
		Metrics:       MetricsPrometheus,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), and the environment read through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := getenv(key); v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("CLOUDMOCK_ADDR", &cfg.Addr)
	str("CLOUDMOCK_LOG_LEVEL", &cfg.LogLevel)
	if v := getenv("CLOUDMOCK_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = core.StorageDriver(v)
	}
	str("CLOUDMOCK_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("CLOUDMOCK_POSTGRES_DSN", &cfg.Storage.PostgresDSN)
	if v := getenv("CLOUDMOCK_BLOB_DRIVER"); v != "" {
		cfg.Blob.Driver = blob.Driver(v)
	}
	str("CLOUDMOCK_BLOB_FS_ROOT", &cfg.Blob.FSRoot)
	str("CLOUDMOCK_BLOB_S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("CLOUDMOCK_BLOB_S3_REGION", &cfg.Blob.S3.Region)
	str("CLOUDMOCK_BLOB_S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	if v := getenv("CLOUDMOCK_BLOB_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CLOUDMOCK_BLOB_S3_PATH_STYLE: %w", err))
		}
		cfg.Blob.S3.PathStyle = b
	}
	str("CLOUDMOCK_PRESET_BASELINE", &cfg.Preset.Baseline)
	list("CLOUDMOCK_PRESET_EXTRAS", &cfg.Preset.Extras)
	list("CLOUDMOCK_PRESET_POPULATORS", &cfg.Preset.Populators)
	list("CLOUDMOCK_FIXTURES", &cfg.Fixtures)
	dur("CLOUDMOCK_RESPONSE_DELAY", &cfg.ResponseDelay)
	dur("CLOUDMOCK_EVENT_DELAY", &cfg.EventDelay)
	if v := getenv("CLOUDMOCK_METRICS"); v != "" {
		cfg.Metrics = MetricsBackend(v)
	}
	if v := getenv("CLOUDMOCK_VIRTUAL_CLOCK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CLOUDMOCK_VIRTUAL_CLOCK: %w", err))
		}
		cfg.VirtualClock = b
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every setting that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverMemory, blob.DriverFilesystem:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	switch c.Metrics {
	case MetricsPrometheus, MetricsExpvar, MetricsNone:
	default:
		errs = append(errs, fmt.Errorf("metrics: unknown backend %q", c.Metrics))
	}
	if c.ResponseDelay < 0 {
		errs = append(errs, errors.New("response_delay must not be negative"))
	}
	if c.EventDelay < 0 {
		errs = append(errs, errors.New("event_delay must not be negative"))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
