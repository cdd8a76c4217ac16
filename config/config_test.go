package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ackretry/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "nats://localhost:4222", cfg.Broker.URL)
	assert.Equal(t, 60*time.Second, cfg.Broker.Keepalive)
	assert.Equal(t, "unsubscribe-test", cfg.Request.ClientID)
	assert.Equal(t, "unsubscribe/test", cfg.Request.Target)
	assert.Equal(t, uint16(1000), cfg.Backoff.BaseDelayMs)
	assert.Equal(t, uint16(3000), cfg.Backoff.MaxDelayMs)
	assert.Equal(t, uint32(999), cfg.Backoff.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Timeouts.Connect)
	assert.False(t, cfg.Metrics.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.Broker.URL = "" }, "broker.url"},
		{"negative keepalive", func(c *Config) { c.Broker.Keepalive = -time.Second }, "broker.keepalive"},
		{"missing target", func(c *Config) { c.Request.Target = "" }, "request.target"},
		{"missing client id", func(c *Config) { c.Request.ClientID = "" }, "request.client_id"},
		{"random client id without base", func(c *Config) {
			c.Request.ClientID = ""
			c.Request.RandomClientID = true
		}, ""},
		{"zero max delay", func(c *Config) {
			c.Backoff.BaseDelayMs = 0
			c.Backoff.MaxDelayMs = 0
		}, "max_delay_ms"},
		{"base above max", func(c *Config) { c.Backoff.BaseDelayMs = 5000 }, "exceeds"},
		{"retry forever", func(c *Config) { c.Backoff.MaxAttempts = 0 }, ""},
		{"negative grace", func(c *Config) { c.Timeouts.AckGrace = -time.Second }, "timeouts.ack_grace"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"tls half configured", func(c *Config) {
			c.Broker.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem"}
		}, "broker.tls"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Address = ""
		}, "metrics.address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Broker.URL = ""
	cfg.Request.Target = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.url")
	assert.Contains(t, err.Error(), "request.target")
}

func TestConfig_EffectiveClientID(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "unsubscribe-test", cfg.EffectiveClientID())

	cfg.Request.RandomClientID = true
	first := cfg.EffectiveClientID()
	second := cfg.EffectiveClientID()

	assert.True(t, strings.HasPrefix(first, "unsubscribe-test-"))
	assert.Len(t, first, len("unsubscribe-test-")+12)
	assert.NotEqual(t, first, second)

	cfg.Request.ClientID = ""
	assert.Len(t, cfg.EffectiveClientID(), 12)
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Broker.Password = "hunter2"
	cfg.Broker.Token = "s3cret"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
	assert.Contains(t, out, "***")
	assert.Contains(t, out, "keepalive: 1m0s")

	// Original is untouched
	assert.Equal(t, "hunter2", cfg.Broker.Password)
}

func TestLoader_YAMLLayer(t *testing.T) {
	path := writeFile(t, "ackretry.yaml", `
broker:
  url: nats://broker:4222
  keepalive: 30s
backoff:
  base_delay_ms: 500
  max_attempts: 20
timeouts:
  connect: 10s
`)

	loader := NewLoader()
	loader.AddLayer(path)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.Broker.URL)
	assert.Equal(t, 30*time.Second, cfg.Broker.Keepalive)
	assert.Equal(t, uint16(500), cfg.Backoff.BaseDelayMs)
	assert.Equal(t, uint32(20), cfg.Backoff.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)

	// Untouched keys keep their defaults
	assert.Equal(t, uint16(3000), cfg.Backoff.MaxDelayMs)
	assert.Equal(t, "unsubscribe/test", cfg.Request.Target)
}

func TestLoader_JSONLayerOverridesYAML(t *testing.T) {
	base := writeFile(t, "base.yaml", "request:\n  target: devices/a\n  client_id: base\n")
	override := writeFile(t, "override.json", `{"request": {"target": "devices/b"}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "devices/b", cfg.Request.Target)
	assert.Equal(t, "base", cfg.Request.ClientID)
}

func TestLoader_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "broker:\n  urll: nats://x\n")
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "config.toml", "url = 'x'")
		_, err := NewLoader().LoadFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported config file type")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("validation", func(t *testing.T) {
		path := writeFile(t, "invalid.yaml", "backoff:\n  base_delay_ms: 9000\n")
		loader := NewLoader()
		loader.EnableValidation(true)
		_, err := loader.LoadFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty.yaml", "\n")
		cfg, err := NewLoader().LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("ACKRETRY_URL", "nats://env:4222")
	t.Setenv("ACKRETRY_KEEPALIVE", "15s")
	t.Setenv("ACKRETRY_TARGET", "env/target")
	t.Setenv("ACKRETRY_RANDOM_CLIENT_ID", "true")
	t.Setenv("ACKRETRY_MAX_DELAY_MS", "6000")
	t.Setenv("ACKRETRY_MAX_ATTEMPTS", "0")
	t.Setenv("ACKRETRY_CONNECT_TIMEOUT", "3s")
	t.Setenv("ACKRETRY_LOG_FORMAT", "json")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.Broker.URL)
	assert.Equal(t, 15*time.Second, cfg.Broker.Keepalive)
	assert.Equal(t, "env/target", cfg.Request.Target)
	assert.True(t, cfg.Request.RandomClientID)
	assert.Equal(t, uint16(6000), cfg.Backoff.MaxDelayMs)
	assert.Equal(t, uint32(0), cfg.Backoff.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_EnvOverrideParseErrors(t *testing.T) {
	t.Setenv("ACKRETRY_MAX_DELAY_MS", "70000")
	t.Setenv("ACKRETRY_KEEPALIVE", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "ACKRETRY_MAX_DELAY_MS")
	assert.Contains(t, err.Error(), "ACKRETRY_KEEPALIVE")
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_TARGET", "custom/target")

	loader := NewLoader()
	loader.SetEnvPrefix("CUSTOM_")

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "custom/target", cfg.Request.Target)
}

func TestLoadEnvFiles(t *testing.T) {
	path := writeFile(t, "test.env", "ACKRETRY_TEST_DOTENV_TARGET=from/dotenv\n")
	t.Setenv("ACKRETRY_TEST_DOTENV_TARGET", "")
	require.NoError(t, os.Unsetenv("ACKRETRY_TEST_DOTENV_TARGET"))

	require.NoError(t, LoadEnvFiles(path))
	assert.Equal(t, "from/dotenv", os.Getenv("ACKRETRY_TEST_DOTENV_TARGET"))

	err := LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
