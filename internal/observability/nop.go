package observability

// NopSink discards all emissions.
type NopSink struct{}

// Compile-time interface check.
var _ Sink = NopSink{}

// Inc discards the increment.
func (NopSink) Inc(string, Labels) {}

// Observe discards the observation.
func (NopSink) Observe(string, float64, Labels) {}
