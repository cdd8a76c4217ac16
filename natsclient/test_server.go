//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestServer is a throwaway NATS server running in a container
type TestServer struct {
	container testcontainers.Container
	URL       string
}

// TestServerOption configures StartTestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	natsVersion  string
	startTimeout time.Duration
}

// WithNATSVersion selects the nats image tag
func WithNATSVersion(version string) TestServerOption {
	return func(cfg *testServerConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout bounds container startup
func WithStartTimeout(timeout time.Duration) TestServerOption {
	return func(cfg *testServerConfig) {
		cfg.startTimeout = timeout
	}
}

// StartTestServer starts a NATS container and terminates it when t finishes.
// Accepts testing.TB so it works with both *testing.T and *testing.B
func StartTestServer(t testing.TB, opts ...TestServerOption) *TestServer {
	t.Helper()

	cfg := &testServerConfig{
		natsVersion:  "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}

	server := &TestServer{container: container}
	t.Cleanup(func() {
		_ = server.Terminate(context.Background()) // Best effort test cleanup
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	server.URL = fmt.Sprintf("nats://%s:%s", host, port.Port())
	return server
}

// Terminate stops the container; the server closes every client connection
func (s *TestServer) Terminate(ctx context.Context) error {
	if s.container == nil {
		return nil
	}
	err := s.container.Terminate(ctx)
	s.container = nil
	return err
}
