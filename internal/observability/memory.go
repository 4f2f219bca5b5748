package observability

import "sync"

// MemorySink is an in-memory Sink for tests.
type MemorySink struct {
	mu           sync.Mutex
	counts       map[string]float64
	observations map[string][]float64
}

// NewMemorySink creates a new in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		counts:       make(map[string]float64),
		observations: make(map[string][]float64),
	}
}

// Compile-time interface check.
var _ Sink = (*MemorySink)(nil)

// Inc increments the named counter, ignoring labels beyond the key.
func (m *MemorySink) Inc(name string, labels Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key(name, labels)]++
}

// Observe records a value for the named metric.
func (m *MemorySink) Observe(name string, value float64, labels Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name, labels)
	m.observations[k] = append(m.observations[k], value)
}

// Count returns the accumulated count for a metric name and chain label.
func (m *MemorySink) Count(name, chain string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(name, Labels{"chain": chain})]
}

// Observations returns recorded values for a metric name and chain label.
func (m *MemorySink) Observations(name, chain string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.observations[key(name, Labels{"chain": chain})]...)
}

func key(name string, labels Labels) string {
	return name + "|" + labels["chain"]
}
