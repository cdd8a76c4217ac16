package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/c360/ackretry/errors"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "ACKRETRY"

// Loader layers configuration sources: defaults, then each file in order,
// then environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.mergeFile(cfg, path); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment overrides")
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// mergeFile decodes path on top of cfg. Fields absent from the file keep
// their current values. YAML is a superset of JSON so both parse here.
func (l *Loader) mergeFile(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: parse %s: %w", errors.ErrInvalidConfig, path, err)
	}
	return nil
}

// applyEnvOverrides applies PREFIX_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if val, ok := lookupEnv(l.envPrefix + "_" + name); ok {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := lookupEnv(l.envPrefix + "_" + name); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := lookupEnv(l.envPrefix + "_" + name); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	uint16v := func(name string, dst *uint16) {
		if val, ok := lookupEnv(l.envPrefix + "_" + name); ok {
			n, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = uint16(n)
		}
	}
	uint32v := func(name string, dst *uint32) {
		if val, ok := lookupEnv(l.envPrefix + "_" + name); ok {
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", l.envPrefix, name, err))
				return
			}
			*dst = uint32(n)
		}
	}

	// Broker
	str("URL", &cfg.Broker.URL)
	duration("KEEPALIVE", &cfg.Broker.Keepalive)
	str("USERNAME", &cfg.Broker.Username)
	str("PASSWORD", &cfg.Broker.Password)
	str("TOKEN", &cfg.Broker.Token)

	// Request
	str("CLIENT_ID", &cfg.Request.ClientID)
	boolean("RANDOM_CLIENT_ID", &cfg.Request.RandomClientID)
	str("TARGET", &cfg.Request.Target)

	// Backoff
	uint16v("BASE_DELAY_MS", &cfg.Backoff.BaseDelayMs)
	uint16v("MAX_DELAY_MS", &cfg.Backoff.MaxDelayMs)
	uint32v("MAX_ATTEMPTS", &cfg.Backoff.MaxAttempts)

	// Timeouts
	duration("CONNECT_TIMEOUT", &cfg.Timeouts.Connect)
	duration("ACK_GRACE", &cfg.Timeouts.AckGrace)
	duration("CLOSE_TIMEOUT", &cfg.Timeouts.Close)

	// Metrics and logging
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ADDR", &cfg.Metrics.Address)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...))
	}
	return nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. With no paths it loads ".env"
// from the working directory if one exists.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		paths = []string{".env"}
	}

	if err := godotenv.Load(paths...); err != nil {
		return errors.WrapInvalid(err, "config", "LoadEnvFiles", "load env files")
	}
	return nil
}
