package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/c360/ackretry/config"
	"github.com/c360/ackretry/coordinator"
	"github.com/c360/ackretry/errors"
	"github.com/c360/ackretry/health"
	"github.com/c360/ackretry/metric"
	"github.com/c360/ackretry/natsclient"
	"github.com/c360/ackretry/pkg/retry"
)

const transportHealth = "transport"

// NewRootCmd builds the ackretry command tree
func NewRootCmd() *cobra.Command {
	cli := &CLIConfig{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Retry a NATS unsubscribe until it is acknowledged",
		Long: `ackretry publishes an unsubscribe request and retries it with full-jitter
exponential backoff until a responder acknowledges it, the retry budget is
spent or the connection closes.

Exit codes:
  0     acknowledged and closed cleanly
  1     fatal error, including a failed or timed-out handshake
  3     retries exhausted
  4     connection lost
  130   interrupted
Any other value is a closure code reported by the connection.

Send SIGUSR1 to cut the current backoff sleep short.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(root, cli)

	root.AddCommand(
		newRunCmd(cli),
		newRespondCmd(cli),
		newConfigCmd(cli),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(cli *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send the unsubscribe request and retry until acknowledged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := initialize(cmd, cli)
			if err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg, logger)
		},
	}
	addRunFlags(cmd, cli)
	return cmd
}

func newRespondCmd(cli *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Acknowledge unsubscribe requests on the target topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := initialize(cmd, cli)
			if err != nil {
				return err
			}
			return runResponder(cmd.Context(), cfg, cli.DropFirst, logger)
		},
	}
	addRespondFlags(cmd, cli)
	return cmd
}

func newConfigCmd(cli *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, cli)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return err
		},
	}
	addRunFlags(cmd, cli)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
		},
	}
}

// initialize loads the configuration and installs the default logger
func initialize(cmd *cobra.Command, cli *CLIConfig) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd, cli)
	if err != nil {
		return nil, nil, err
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	logger.Info("Starting ackretry",
		"command", cmd.Name(),
		"version", Version,
		"build_time", BuildTime,
		"url", cfg.Broker.URL,
		"target", cfg.Request.Target)
	logger.Debug("Effective configuration", "config", cfg.String())

	return cfg, logger, nil
}

// runClient drives one unsubscribe to completion next to the optional
// metrics server and converts the result into a process exit code.
func runClient(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	client, err := natsclient.NewClient(clientOptions(cfg, logger, registry, monitor)...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	wake := make(chan struct{}, 1)
	stopWake := notifyWake(ctx, wake)
	defer stopWake()

	coord, err := coordinator.New(coordinatorConfig(cfg), client,
		coordinator.WithSampler(newSampler(cfg.Backoff.Seed)),
		coordinator.WithWake(wake),
		coordinator.WithLogger(logger.With("component", "coordinator")),
		coordinator.WithMetrics(registry.CoreMetrics()),
		coordinator.WithHealth(monitor),
	)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, registry, monitor)
		g.Go(func() error {
			logger.Info("Serving metrics", "address", server.Address())
			return server.Run(serverCtx)
		})
	}

	var result coordinator.Result
	g.Go(func() error {
		defer stopServer()
		var runErr error
		result, runErr = coord.Run(gctx)
		return runErr
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Unsubscribe finished",
		"outcome", result.Outcome.String(),
		"attempts", result.Attempts,
		"requests", result.Requests,
		"request_id", result.LastRequestID,
		"exit_code", result.ExitCode)

	return resultError(result)
}

// resultError maps a finished run to the error runClient reports: nil for a
// zero exit code, otherwise an exitError naming why the run ended.
func resultError(result coordinator.Result) error {
	if result.ExitCode == 0 {
		return nil
	}

	exit := &exitError{code: result.ExitCode}
	switch result.Outcome {
	case coordinator.OutcomeExhausted:
		exit.err = errors.ErrRetriesExhausted
	case coordinator.OutcomeAcknowledged, coordinator.OutcomeTransportClosed:
		exit.err = errors.TransportClosed(result.ExitCode)
	case coordinator.OutcomeCancelled:
		exit.err = context.Canceled
	}
	return exit
}

// runResponder acknowledges requests until interrupted
func runResponder(parent context.Context, cfg *config.Config, dropFirst int, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	responder, err := natsclient.NewResponder(cfg.Broker.URL, cfg.Request.Target,
		natsclient.WithDropFirst(dropFirst),
		natsclient.WithResponderLogger(logger.With("component", "responder")),
		natsclient.WithResponderMetrics(registry),
	)
	if err != nil {
		return fmt.Errorf("create responder: %w", err)
	}

	if err := responder.Start(ctx); err != nil {
		return fmt.Errorf("start responder: %w", err)
	}
	monitor.UpdateHealthy("responder", "listening")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, registry, monitor)
		g.Go(func() error {
			logger.Info("Serving metrics", "address", server.Address())
			return server.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return responder.Stop()
	})

	err = g.Wait()
	logger.Info("Responder stopped",
		"seen", responder.Seen(),
		"acknowledged", responder.Acknowledged())
	return err
}

func clientOptions(
	cfg *config.Config,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
) []natsclient.ClientOption {
	clientID := cfg.EffectiveClientID()

	opts := []natsclient.ClientOption{
		natsclient.WithClientID(clientID),
		natsclient.WithName(appName + "-" + clientID),
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithMaxReconnects(cfg.Broker.MaxReconnects),
		natsclient.WithReconnectWait(cfg.Broker.ReconnectWait),
		natsclient.WithDrainTimeout(cfg.Timeouts.Drain),
		natsclient.WithMetrics(registry),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			var changed bool
			if healthy {
				changed = monitor.UpdateHealthy(transportHealth, "connected")
			} else {
				changed = monitor.UpdateDegraded(transportHealth, "disconnected")
			}
			if changed {
				logger.Info("Transport health changed", "healthy", healthy)
			}
		}),
	}

	if cfg.Broker.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Broker.Username, cfg.Broker.Password))
	}
	if cfg.Broker.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Broker.Token))
	}
	if cfg.Broker.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.Broker.TLS.CertFile, cfg.Broker.TLS.KeyFile, cfg.Broker.TLS.CAFile))
	}
	return opts
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	return coordinator.Config{
		Endpoint:       cfg.Broker.URL,
		Keepalive:      cfg.Broker.Keepalive,
		Target:         cfg.Request.Target,
		BaseDelayMs:    cfg.Backoff.BaseDelayMs,
		MaxDelayMs:     cfg.Backoff.MaxDelayMs,
		MaxAttempts:    cfg.Backoff.MaxAttempts,
		ConnectTimeout: cfg.Timeouts.Connect,
		AckGrace:       cfg.Timeouts.AckGrace,
		CloseTimeout:   cfg.Timeouts.Close,
	}
}

func newSampler(seed int64) retry.Sampler {
	if seed != 0 {
		return retry.NewSeededSampler(seed)
	}
	return retry.NewRandomSampler()
}
