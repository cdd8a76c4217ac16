package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/c360/ackretry/errors"
)

// Defaults used when nothing else is configured
const (
	DefaultURL         = "nats://localhost:4222"
	DefaultKeepalive   = 60 * time.Second
	DefaultClientID    = "unsubscribe-test"
	DefaultTarget      = "unsubscribe/test"
	DefaultBaseDelayMs = 1000
	DefaultMaxDelayMs  = 3000
	DefaultMaxAttempts = 999
)

// Config represents the complete application configuration
type Config struct {
	Broker   BrokerConfig  `yaml:"broker" json:"broker"`
	Request  RequestConfig `yaml:"request" json:"request"`
	Backoff  BackoffConfig `yaml:"backoff" json:"backoff"`
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`
	Metrics  MetricsConfig `yaml:"metrics" json:"metrics"`
	Log      LogConfig     `yaml:"log" json:"log"`
}

// BrokerConfig describes the NATS connection
type BrokerConfig struct {
	URL           string        `yaml:"url" json:"url"`
	Keepalive     time.Duration `yaml:"keepalive" json:"keepalive"`
	MaxReconnects int           `yaml:"max_reconnects" json:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" json:"reconnect_wait"`
	Username      string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string        `yaml:"password,omitempty" json:"password,omitempty"`
	Token         string        `yaml:"token,omitempty" json:"token,omitempty"`
	TLS           TLSConfig     `yaml:"tls" json:"tls"`
}

// TLSConfig holds client certificate settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file,omitempty" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty" json:"ca_file,omitempty"`
}

// RequestConfig identifies the client and the unsubscribe target
type RequestConfig struct {
	ClientID       string `yaml:"client_id" json:"client_id"`
	RandomClientID bool   `yaml:"random_client_id" json:"random_client_id"`
	Target         string `yaml:"target" json:"target"`
}

// BackoffConfig bounds the retry delays. MaxAttempts 0 retries forever.
type BackoffConfig struct {
	BaseDelayMs uint16 `yaml:"base_delay_ms" json:"base_delay_ms"`
	MaxDelayMs  uint16 `yaml:"max_delay_ms" json:"max_delay_ms"`
	MaxAttempts uint32 `yaml:"max_attempts" json:"max_attempts"`
	Seed        int64  `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// TimeoutConfig bounds the waits outside the backoff sleep.
// A zero Connect waits for the handshake indefinitely.
type TimeoutConfig struct {
	Connect  time.Duration `yaml:"connect" json:"connect"`
	AckGrace time.Duration `yaml:"ack_grace" json:"ack_grace"`
	Close    time.Duration `yaml:"close" json:"close"`
	Drain    time.Duration `yaml:"drain" json:"drain"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:           DefaultURL,
			Keepalive:     DefaultKeepalive,
			MaxReconnects: 5,
			ReconnectWait: 2 * time.Second,
		},
		Request: RequestConfig{
			ClientID: DefaultClientID,
			Target:   DefaultTarget,
		},
		Backoff: BackoffConfig{
			BaseDelayMs: DefaultBaseDelayMs,
			MaxDelayMs:  DefaultMaxDelayMs,
			MaxAttempts: DefaultMaxAttempts,
		},
		Timeouts: TimeoutConfig{
			AckGrace: DefaultMaxDelayMs * time.Millisecond,
			Close:    5 * time.Second,
			Drain:    5 * time.Second,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Broker.URL == "" {
		errs = append(errs, stderrors.New("broker.url is required"))
	}
	if c.Broker.Keepalive < 0 {
		errs = append(errs, fmt.Errorf("broker.keepalive must not be negative: %v", c.Broker.Keepalive))
	}
	if c.Broker.TLS.Enabled && (c.Broker.TLS.CertFile == "") != (c.Broker.TLS.KeyFile == "") {
		errs = append(errs, stderrors.New("broker.tls.cert_file and broker.tls.key_file must be set together"))
	}

	if c.Request.Target == "" {
		errs = append(errs, stderrors.New("request.target is required"))
	}
	if c.Request.ClientID == "" && !c.Request.RandomClientID {
		errs = append(errs, stderrors.New("request.client_id is required unless random_client_id is set"))
	}

	if c.Backoff.MaxDelayMs == 0 {
		errs = append(errs, stderrors.New("backoff.max_delay_ms must be non-zero"))
	}
	if c.Backoff.BaseDelayMs > c.Backoff.MaxDelayMs {
		errs = append(errs, fmt.Errorf("backoff.base_delay_ms (%d) exceeds backoff.max_delay_ms (%d)",
			c.Backoff.BaseDelayMs, c.Backoff.MaxDelayMs))
	}

	for name, d := range map[string]time.Duration{
		"timeouts.connect":   c.Timeouts.Connect,
		"timeouts.ack_grace": c.Timeouts.AckGrace,
		"timeouts.close":     c.Timeouts.Close,
		"timeouts.drain":     c.Timeouts.Drain,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative: %v", name, d))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of json, text", c.Log.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, stderrors.New("metrics.address is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
			"Config", "Validate", "validate configuration")
	}
	return nil
}

// EffectiveClientID returns the client id to put on the wire. With
// RandomClientID set, a short random suffix keeps concurrent clients apart.
func (c *Config) EffectiveClientID() string {
	if !c.Request.RandomClientID {
		return c.Request.ClientID
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if c.Request.ClientID == "" {
		return suffix
	}
	return c.Request.ClientID + "-" + suffix
}

// Redacted returns a copy with credentials masked, safe for logging
func (c *Config) Redacted() *Config {
	clone := *c
	if clone.Broker.Password != "" {
		clone.Broker.Password = "***"
	}
	if clone.Broker.Token != "" {
		clone.Broker.Token = "***"
	}
	return &clone
}

// String returns a YAML representation of the config with credentials masked
func (c *Config) String() string {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
