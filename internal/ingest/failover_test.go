package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale-ingest/internal/observability"
	"whale-ingest/internal/provider/stub"
)

func TestStreamController_DelayGrowth(t *testing.T) {
	c := NewStreamController(StreamControllerOptions{
		Chain:     "ethereum",
		Primary:   stub.New("primary"),
		Fallback:  stub.New("fallback"),
		RetryBase: 100 * time.Millisecond,
		RetryMax:  2 * time.Second,
		Jitter:    func() float64 { return 0 },
	})

	assert.Equal(t, 100*time.Millisecond, c.delay(0))
	assert.Equal(t, 200*time.Millisecond, c.delay(1))
	assert.Equal(t, 400*time.Millisecond, c.delay(2))
	assert.Equal(t, 800*time.Millisecond, c.delay(3))
	// Capped at the maximum.
	assert.Equal(t, 2*time.Second, c.delay(10))
}

func TestStreamController_DelayJitterBounds(t *testing.T) {
	c := NewStreamController(StreamControllerOptions{
		Chain:     "ethereum",
		Primary:   stub.New("primary"),
		Fallback:  stub.New("fallback"),
		RetryBase: 100 * time.Millisecond,
		RetryMax:  time.Minute,
		Jitter:    func() float64 { return 0.999 },
	})

	// Jitter adds strictly less than one base interval.
	d := c.delay(0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 200*time.Millisecond)
}

func TestStreamController_OpenFirstTry(t *testing.T) {
	primary := stub.New("alchemy")
	c := NewStreamController(StreamControllerOptions{
		Chain:    "ethereum",
		Primary:  primary,
		Fallback: stub.New("moralis"),
	})

	_, prov, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alchemy", prov.Name())
	assert.Equal(t, 1, primary.StreamOpens())
}

func TestStreamController_SwapAfterMaxAttempts(t *testing.T) {
	primary := stub.New("alchemy")
	fallback := stub.New("moralis")
	primary.FailStreamOpens(errors.New("boom"), errors.New("boom"))

	sink := observability.NewMemorySink()
	c := NewStreamController(StreamControllerOptions{
		Chain:            "ethereum",
		Primary:          primary,
		Fallback:         fallback,
		RetryBase:        time.Millisecond,
		RetryMax:         5 * time.Millisecond,
		RetryMaxAttempts: 2,
		Sink:             sink,
		Jitter:           func() float64 { return 0 },
	})

	_, prov, err := c.Open(context.Background())
	require.NoError(t, err)

	// Two consecutive primary failures promote the fallback.
	assert.Equal(t, "moralis", prov.Name())
	assert.Equal(t, float64(1), sink.Count(MetricFailoverSwaps, "ethereum"))

	// Designation is sticky for subsequent opens.
	p, f := c.Providers()
	assert.Equal(t, "moralis", p.Name())
	assert.Equal(t, "alchemy", f.Name())
}

func TestStreamController_RetriesBeforeSwap(t *testing.T) {
	primary := stub.New("alchemy")
	primary.FailStreamOpens(errors.New("transient"))

	c := NewStreamController(StreamControllerOptions{
		Chain:            "ethereum",
		Primary:          primary,
		Fallback:         stub.New("moralis"),
		RetryBase:        time.Millisecond,
		RetryMax:         5 * time.Millisecond,
		RetryMaxAttempts: 8,
		Jitter:           func() float64 { return 0 },
	})

	_, prov, err := c.Open(context.Background())
	require.NoError(t, err)

	// A single transient failure recovers on the same provider.
	assert.Equal(t, "alchemy", prov.Name())
	assert.Equal(t, 2, primary.StreamOpens())
}

func TestStreamController_CancelDuringBackoff(t *testing.T) {
	primary := stub.New("alchemy")
	primary.FailStreamOpens(errors.New("down"))

	c := NewStreamController(StreamControllerOptions{
		Chain:     "ethereum",
		Primary:   primary,
		Fallback:  stub.New("moralis"),
		RetryBase: 10 * time.Second,
		RetryMax:  time.Minute,
		Jitter:    func() float64 { return 0 },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := c.Open(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
