package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/ackretry/config"
)

// CLIConfig holds command-line configuration. Only flags the user set
// override the loaded configuration.
type CLIConfig struct {
	ConfigPath string
	EnvFiles   []string
	LogLevel   string
	LogFormat  string

	URL            string
	Target         string
	ClientID       string
	RandomClientID bool

	Keepalive      time.Duration
	BaseDelayMs    uint16
	MaxDelayMs     uint16
	MaxAttempts    uint32
	Seed           int64
	ConnectTimeout time.Duration
	AckGrace       time.Duration
	CloseTimeout   time.Duration

	MetricsEnabled bool
	MetricsAddr    string

	DropFirst int
}

// addGlobalFlags registers flags shared by every subcommand
func addGlobalFlags(cmd *cobra.Command, cli *CLIConfig) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&cli.ConfigPath, "config", "c", "",
		"Path to a YAML or JSON configuration file (env: ACKRETRY_CONFIG)")
	flags.StringSliceVar(&cli.EnvFiles, "env-file", nil,
		"Load environment variables from these files (default .env if present)")
	flags.StringVar(&cli.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (env: ACKRETRY_LOG_LEVEL)")
	flags.StringVar(&cli.LogFormat, "log-format", "",
		"Log format: json, text (env: ACKRETRY_LOG_FORMAT)")

	flags.StringVar(&cli.URL, "url", config.DefaultURL,
		"NATS server URL (env: ACKRETRY_URL)")
	flags.StringVar(&cli.Target, "target", config.DefaultTarget,
		"Topic to unsubscribe from (env: ACKRETRY_TARGET)")
	flags.BoolVar(&cli.MetricsEnabled, "metrics", false,
		"Serve Prometheus metrics and /health (env: ACKRETRY_METRICS_ENABLED)")
	flags.StringVar(&cli.MetricsAddr, "metrics-addr", ":9090",
		"Metrics listen address (env: ACKRETRY_METRICS_ADDR)")
}

// addRunFlags registers the client flags of the run subcommand
func addRunFlags(cmd *cobra.Command, cli *CLIConfig) {
	flags := cmd.Flags()
	flags.StringVar(&cli.ClientID, "client-id", config.DefaultClientID,
		"Client identity carried in every request (env: ACKRETRY_CLIENT_ID)")
	flags.BoolVar(&cli.RandomClientID, "random-client-id", false,
		"Append a random suffix to the client id (env: ACKRETRY_RANDOM_CLIENT_ID)")
	flags.DurationVar(&cli.Keepalive, "keepalive", config.DefaultKeepalive,
		"Server ping interval (env: ACKRETRY_KEEPALIVE)")

	flags.Uint16Var(&cli.BaseDelayMs, "base-delay-ms", config.DefaultBaseDelayMs,
		"Initial backoff window in milliseconds (env: ACKRETRY_BASE_DELAY_MS)")
	flags.Uint16Var(&cli.MaxDelayMs, "max-delay-ms", config.DefaultMaxDelayMs,
		"Backoff window cap in milliseconds (env: ACKRETRY_MAX_DELAY_MS)")
	flags.Uint32Var(&cli.MaxAttempts, "max-attempts", config.DefaultMaxAttempts,
		"Retry budget, 0 to retry forever (env: ACKRETRY_MAX_ATTEMPTS)")
	flags.Int64Var(&cli.Seed, "seed", 0,
		"Seed for backoff jitter, 0 for a random seed")

	flags.DurationVar(&cli.ConnectTimeout, "connect-timeout", 0,
		"Handshake timeout, 0 to wait indefinitely (env: ACKRETRY_CONNECT_TIMEOUT)")
	flags.DurationVar(&cli.AckGrace, "ack-grace", config.DefaultMaxDelayMs*time.Millisecond,
		"Wait for a late acknowledgment once retries are exhausted (env: ACKRETRY_ACK_GRACE)")
	flags.DurationVar(&cli.CloseTimeout, "close-timeout", 5*time.Second,
		"Wait for the connection to close (env: ACKRETRY_CLOSE_TIMEOUT)")
}

// addRespondFlags registers the flags of the respond subcommand
func addRespondFlags(cmd *cobra.Command, cli *CLIConfig) {
	cmd.Flags().IntVar(&cli.DropFirst, "drop-first", 0,
		"Ignore this many requests before acknowledging")
}

// loadConfig layers defaults, the config file, environment variables and
// finally explicitly set flags, then validates the result.
func loadConfig(cmd *cobra.Command, cli *CLIConfig) (*config.Config, error) {
	if err := config.LoadEnvFiles(cli.EnvFiles...); err != nil {
		return nil, err
	}

	path := cli.ConfigPath
	if path == "" {
		path = getEnv("ACKRETRY_CONFIG", "")
	}

	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlags(cmd, cli, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg
func applyFlags(cmd *cobra.Command, cli *CLIConfig, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		cfg.Log.Level = cli.LogLevel
	}
	if changed("log-format") {
		cfg.Log.Format = cli.LogFormat
	}
	if changed("url") {
		cfg.Broker.URL = cli.URL
	}
	if changed("target") {
		cfg.Request.Target = cli.Target
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = cli.MetricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Address = cli.MetricsAddr
	}
	if changed("client-id") {
		cfg.Request.ClientID = cli.ClientID
	}
	if changed("random-client-id") {
		cfg.Request.RandomClientID = cli.RandomClientID
	}
	if changed("keepalive") {
		cfg.Broker.Keepalive = cli.Keepalive
	}
	if changed("base-delay-ms") {
		cfg.Backoff.BaseDelayMs = cli.BaseDelayMs
	}
	if changed("max-delay-ms") {
		cfg.Backoff.MaxDelayMs = cli.MaxDelayMs
	}
	if changed("max-attempts") {
		cfg.Backoff.MaxAttempts = cli.MaxAttempts
	}
	if changed("seed") {
		cfg.Backoff.Seed = cli.Seed
	}
	if changed("connect-timeout") {
		cfg.Timeouts.Connect = cli.ConnectTimeout
	}
	if changed("ack-grace") {
		cfg.Timeouts.AckGrace = cli.AckGrace
	}
	if changed("close-timeout") {
		cfg.Timeouts.Close = cli.CloseTimeout
	}
}

// getEnv returns the environment value for key or defaultValue when unset
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
