package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ackretry/config"
	"github.com/c360/ackretry/coordinator"
	"github.com/c360/ackretry/errors"
	"github.com/c360/ackretry/natsclient"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, appName, cmd.Use)

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"run", "respond", "config", "version"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "env-file", "log-level", "log-format", "url", "target", "metrics"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "--%s", flag)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, appName+" version "+Version)
}

func TestConfigCmd_Defaults(t *testing.T) {
	out, err := runRoot(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "url: "+config.DefaultURL)
	assert.Contains(t, out, "target: "+config.DefaultTarget)
	assert.Contains(t, out, "max_attempts: 999")
}

func TestConfigCmd_Layering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ackretry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
request:
  target: orders/cancel
backoff:
  base_delay_ms: 10
  max_delay_ms: 100
  max_attempts: 12
`), 0o600))

	t.Setenv("ACKRETRY_MAX_ATTEMPTS", "7")
	t.Setenv("ACKRETRY_MAX_DELAY_MS", "200")

	out, err := runRoot(t, "config", "--config", path, "--max-attempts", "9")
	require.NoError(t, err)

	// File value survives where nothing overrides it
	assert.Contains(t, out, "target: orders/cancel")
	assert.Contains(t, out, "base_delay_ms: 10")
	// Environment overrides the file
	assert.Contains(t, out, "max_delay_ms: 200")
	// An explicit flag overrides the environment
	assert.Contains(t, out, "max_attempts: 9")
}

func TestConfigCmd_UnsetFlagsKeepEnvironment(t *testing.T) {
	t.Setenv("ACKRETRY_TARGET", "from/env")
	t.Setenv("ACKRETRY_URL", "nats://env:4222")

	out, err := runRoot(t, "config", "--url", "nats://flag:4222")
	require.NoError(t, err)
	assert.Contains(t, out, "target: from/env")
	assert.Contains(t, out, "url: nats://flag:4222")
}

func TestConfigCmd_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ACKRETRY_TARGET=dotenv/topic\n"), 0o600))
	t.Setenv("ACKRETRY_TARGET", "")
	require.NoError(t, os.Unsetenv("ACKRETRY_TARGET"))

	out, err := runRoot(t, "config", "--env-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "target: dotenv/topic")
}

func TestConfigCmd_RedactsSecrets(t *testing.T) {
	t.Setenv("ACKRETRY_PASSWORD", "hunter2")
	t.Setenv("ACKRETRY_USERNAME", "svc")

	out, err := runRoot(t, "config")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "***")
}

func TestExecute_ExitCodes(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	t.Run("success", func(t *testing.T) {
		assert.Equal(t, 0, execute([]string{"version"}))
	})

	t.Run("invalid configuration", func(t *testing.T) {
		assert.Equal(t, coordinator.ExitFatal, execute([]string{"config", "--max-delay-ms", "0"}))
	})

	t.Run("unknown command", func(t *testing.T) {
		assert.Equal(t, coordinator.ExitFatal, execute([]string{"bogus"}))
	})

	t.Run("unreachable broker", func(t *testing.T) {
		code := execute([]string{"run",
			"--url", "nats://127.0.0.1:1",
			"--connect-timeout", "10s",
			"--log-level", "error",
		})
		assert.Equal(t, coordinator.ExitFatal, code)
	})
}

func TestExitError(t *testing.T) {
	err := &exitError{code: coordinator.ExitRetriesExhausted}
	assert.Equal(t, "exit status 3", err.Error())
	assert.NoError(t, err.Unwrap())

	err = &exitError{code: coordinator.ExitRetriesExhausted, err: errors.ErrRetriesExhausted}
	assert.Equal(t, "exit status 3: retries exhausted", err.Error())
	assert.ErrorIs(t, err, errors.ErrRetriesExhausted)
}

func TestResultError(t *testing.T) {
	t.Run("clean acknowledgment", func(t *testing.T) {
		assert.NoError(t, resultError(coordinator.Result{Outcome: coordinator.OutcomeAcknowledged}))
	})

	t.Run("exhausted", func(t *testing.T) {
		err := resultError(coordinator.Result{
			Outcome:  coordinator.OutcomeExhausted,
			ExitCode: coordinator.ExitRetriesExhausted,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRetriesExhausted)

		var exit *exitError
		require.ErrorAs(t, err, &exit)
		assert.Equal(t, coordinator.ExitRetriesExhausted, exit.code)
	})

	t.Run("connection lost", func(t *testing.T) {
		err := resultError(coordinator.Result{
			Outcome:  coordinator.OutcomeTransportClosed,
			ExitCode: natsclient.CodeConnectionLost,
		})
		assert.ErrorIs(t, err, errors.ErrTransportClosed)

		var closed *errors.TransportClosedError
		require.ErrorAs(t, err, &closed)
		assert.Equal(t, natsclient.CodeConnectionLost, closed.Code)
	})

	t.Run("cancelled", func(t *testing.T) {
		err := resultError(coordinator.Result{
			Outcome:  coordinator.OutcomeCancelled,
			ExitCode: coordinator.ExitCancelled,
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExitCodes_ConnectionLostIsDistinct(t *testing.T) {
	own := []int{coordinator.ExitFatal, coordinator.ExitRetriesExhausted, coordinator.ExitCancelled}
	assert.NotContains(t, own, natsclient.CodeConnectionLost)
	assert.NotEqual(t, natsclient.CodeClientClosed, natsclient.CodeConnectionLost)

	out, err := runRoot(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "4     connection lost")
}

func TestSetupLogger(t *testing.T) {
	t.Run("json with service attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(&buf, "info", "json")
		logger.Info("hello", "key", "value")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, appName, entry["service"])
		assert.Equal(t, Version, entry["version"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(&buf, "warn", "text")
		logger.Info("dropped")
		logger.Warn("kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("debug adds source", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(&buf, "debug", "text")
		logger.Debug("visible")

		assert.Contains(t, buf.String(), "visible")
		assert.Contains(t, buf.String(), "source=")
	})

	t.Run("level names ignore case", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(&buf, "ERROR", "JSON")
		logger.Warn("dropped")
		logger.Error("kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), `"msg":"kept"`)
	})

	t.Run("unknown values fall back", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(&buf, "loud", "xml")
		logger.Debug("hidden")
		logger.Info("shown")

		assert.False(t, strings.Contains(buf.String(), "hidden"))
		assert.Contains(t, buf.String(), "msg=shown")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"Info", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"warn+2", slog.LevelWarn + 2},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestCoordinatorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Timeouts.Connect = 2 * time.Second
	cfg.Backoff.MaxAttempts = 4

	got := coordinatorConfig(cfg)
	assert.Equal(t, cfg.Broker.URL, got.Endpoint)
	assert.Equal(t, cfg.Broker.Keepalive, got.Keepalive)
	assert.Equal(t, cfg.Request.Target, got.Target)
	assert.Equal(t, uint16(config.DefaultBaseDelayMs), got.BaseDelayMs)
	assert.Equal(t, uint16(config.DefaultMaxDelayMs), got.MaxDelayMs)
	assert.Equal(t, uint32(4), got.MaxAttempts)
	assert.Equal(t, 2*time.Second, got.ConnectTimeout)
	assert.Equal(t, cfg.Timeouts.AckGrace, got.AckGrace)
	assert.Equal(t, cfg.Timeouts.Close, got.CloseTimeout)
}

func TestNewSampler_SeedIsDeterministic(t *testing.T) {
	a, b := newSampler(42), newSampler(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Uint32(), b.Uint32())
	}
	assert.NotNil(t, newSampler(0))
}

func TestClientOptions(t *testing.T) {
	cfg := config.Default()
	base := len(clientOptions(cfg, slog.Default(), nil, nil))

	cfg.Broker.Username = "svc"
	cfg.Broker.Password = "secret"
	cfg.Broker.Token = "token"
	cfg.Broker.TLS.Enabled = true
	assert.Len(t, clientOptions(cfg, slog.Default(), nil, nil), base+3)
}
