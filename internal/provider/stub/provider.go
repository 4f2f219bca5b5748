// Package stub provides a scripted Provider for tests and local mock runs.
package stub

import (
	"context"
	"sync"
	"time"

	"whale-ingest/internal/domain"
	"whale-ingest/internal/provider"
)

// Window records one Backfill invocation.
type Window struct {
	Chain string
	Start time.Time
	End   time.Time
}

// Provider is a controllable provider.Provider implementation. Stream
// opens can be scripted to fail a number of times, live events are pushed
// by the test, and every backfill window is recorded.
type Provider struct {
	name string

	mu              sync.Mutex
	streamErrs      []error
	streamOpens     int
	sessions        []chan *domain.TransferEvent
	backfillEvents  []*domain.TransferEvent
	backfillErr     error
	backfillWindows []Window
}

// New creates a stub provider with the given vendor name.
func New(name string) *Provider {
	return &Provider{name: name}
}

// Compile-time interface check.
var _ provider.Provider = (*Provider)(nil)

// Name identifies the stub vendor.
func (p *Provider) Name() string { return p.name }

// FailStreamOpens scripts the next len(errs) StreamTransfers calls to fail
// with the given errors, in order.
func (p *Provider) FailStreamOpens(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamErrs = append(p.streamErrs, errs...)
}

// SetBackfill scripts the Backfill response.
func (p *Provider) SetBackfill(events []*domain.TransferEvent, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backfillEvents = events
	p.backfillErr = err
}

// StreamTransfers pops a scripted failure if any remain, otherwise opens a
// fresh event channel for this session.
func (p *Provider) StreamTransfers(_ context.Context, _ string) (<-chan *domain.TransferEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.streamOpens++
	if len(p.streamErrs) > 0 {
		err := p.streamErrs[0]
		p.streamErrs = p.streamErrs[1:]
		return nil, err
	}

	ch := make(chan *domain.TransferEvent, 100)
	p.sessions = append(p.sessions, ch)
	return ch, nil
}

// Backfill records the requested window and returns the scripted response.
func (p *Provider) Backfill(_ context.Context, chain string, start, end time.Time) ([]*domain.TransferEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.backfillWindows = append(p.backfillWindows, Window{Chain: chain, Start: start, End: end})
	if p.backfillErr != nil {
		return nil, p.backfillErr
	}
	return p.backfillEvents, nil
}

// Emit pushes a live event into the most recently opened stream session.
func (p *Provider) Emit(e *domain.TransferEvent) {
	p.mu.Lock()
	ch := p.sessions[len(p.sessions)-1]
	p.mu.Unlock()
	ch <- e
}

// CloseStream closes every open stream session, simulating a mid-stream
// failure.
func (p *Provider) CloseStream() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.sessions {
		close(ch)
	}
	p.sessions = nil
}

// StreamOpens returns the number of StreamTransfers calls observed.
func (p *Provider) StreamOpens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamOpens
}

// BackfillWindows returns the recorded backfill invocations.
func (p *Provider) BackfillWindows() []Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Window(nil), p.backfillWindows...)
}
