package natsclient

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ackretry/metric"
)

// Message directions and kinds for transportMetrics.messages
const (
	directionOut = "out"
	directionIn  = "in"

	kindRequest = "request"
	kindAck     = "ack"
	kindInvalid = "invalid"
	kindDropped = "dropped"
)

// transportMetrics counts protocol traffic through this client
type transportMetrics struct {
	messages  *prometheus.CounterVec // by direction and kind
	connected prometheus.Gauge       // shared core gauge
}

// newTransportMetrics registers the transport collectors with registry
func newTransportMetrics(registry *metric.MetricsRegistry, component string) (*transportMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &transportMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ackretry",
			Subsystem: "transport",
			Name:      "messages_total",
			Help:      "Protocol messages handled by the transport",
			ConstLabels: prometheus.Labels{
				"component": component,
			},
		}, []string{"direction", "kind"}),
		connected: registry.CoreMetrics().TransportConnected,
	}

	if err := registry.RegisterCounterVec(component, "messages", m.messages); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *transportMetrics) recordMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction, kind).Inc()
}

func (m *transportMetrics) setConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
