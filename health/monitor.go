package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor holds the latest status reported by each named component.
// All methods are safe for concurrent use.
type Monitor struct {
	mu         sync.RWMutex
	components map[string]Status
}

// NewMonitor returns an empty monitor
func NewMonitor() *Monitor {
	return &Monitor{components: make(map[string]Status)}
}

// Update stores status under name. The reported Component is always name.
// It returns true when this is the first report for name or its level
// (healthy, degraded, unhealthy) differs from the previous one.
func (m *Monitor) Update(name string, status Status) (changed bool) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	prev, seen := m.components[name]
	m.components[name] = status
	m.mu.Unlock()

	return !seen || prev.Status != status.Status
}

// UpdateHealthy reports name as healthy
func (m *Monitor) UpdateHealthy(name, message string) bool {
	return m.Update(name, NewHealthy(name, message))
}

// UpdateDegraded reports name as degraded
func (m *Monitor) UpdateDegraded(name, message string) bool {
	return m.Update(name, NewDegraded(name, message))
}

// UpdateUnhealthy reports name as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) bool {
	return m.Update(name, NewUnhealthy(name, message))
}

// Get returns the last status reported under name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.components[name]
	return status, ok
}

// Snapshot copies every tracked status, ordered by component name
func (m *Monitor) Snapshot() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.components))
	for _, status := range m.components {
		out = append(out, status)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// AggregateHealth rolls every tracked component up under systemName
func (m *Monitor) AggregateHealth(systemName string) Status {
	return Aggregate(systemName, m.Snapshot())
}
