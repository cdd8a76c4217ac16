package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/ackretry/metric"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithClientID sets the identity carried in every request. It defaults to
// DefaultClientID.
func WithClientID(id string) ClientOption {
	return func(c *Client) error {
		if id == "" {
			return fmt.Errorf("client id must not be empty")
		}
		c.clientID = id
		return nil
	}
}

// WithName sets the connection name reported to the NATS server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite).
// Once they are used up the connection closes with CodeConnectionLost.
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nil
	}
}

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on disconnect
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithCredentials sets username and password for authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLS enables TLS with optional certificate paths
func WithTLS(certFile, keyFile, caFile string) ClientOption {
	return func(c *Client) error {
		c.tlsCertFile = certFile
		c.tlsKeyFile = keyFile
		c.tlsCAFile = caFile
		c.tlsEnabled = true
		return nil
	}
}

// WithAckSubject overrides the reply subject acknowledgments are expected on.
// By default a fresh inbox is created per connection.
func WithAckSubject(subject string) ClientOption {
	return func(c *Client) error {
		c.ackSubject = subject
		return nil
	}
}

// WithHealthChangeCallback sets a callback for connectivity changes
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithMetrics enables transport metrics using the provided registry
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		metrics, err := newTransportMetrics(registry, "natsclient")
		if err != nil {
			return err
		}
		c.metrics = metrics
		return nil
	}
}
