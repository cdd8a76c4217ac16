package retry

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ackretry/errors"
)

func TestInitialize_InvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		base uint16
		max  uint16
	}{
		{"zero max", 0, 0},
		{"base above max", 2000, 1000},
		{"zero max with base", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := Initialize(tt.base, tt.max, 3)
			require.Error(t, err)
			assert.Nil(t, rc)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidParameters))
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestInitialize_Valid(t *testing.T) {
	rc, err := Initialize(1000, 3000, 999)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), rc.AttemptsDone())
	assert.Equal(t, uint16(1000), rc.BaseDelayMs())
	assert.Equal(t, uint16(3000), rc.MaxDelayMs())
	assert.Equal(t, uint32(999), rc.MaxAttempts())
	assert.False(t, rc.Exhausted())
}

func TestInitialize_BaseEqualsMax(t *testing.T) {
	rc, err := Initialize(500, 500, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), rc.Window())
}

func TestNextBackoff_MaximalSamplesScenario(t *testing.T) {
	rc, err := Initialize(1000, 3000, 3)
	require.NoError(t, err)

	// A sample equal to the window lands on the window's maximum
	expected := []uint16{1000, 2000, 3000}
	for i, want := range expected {
		window := rc.Window()
		out := rc.NextBackoff(uint32(window))
		require.False(t, out.RetriesExhausted(), "call %d", i+1)
		assert.Equal(t, want, out.DelayMs(), "call %d", i+1)
	}

	out := rc.NextBackoff(math.MaxUint32)
	assert.True(t, out.RetriesExhausted())
	assert.Equal(t, uint32(3), rc.AttemptsDone())
}

func TestNextBackoff_ExhaustsOnCallAfterBudget(t *testing.T) {
	for _, budget := range []uint32{1, 2, 5, 10} {
		rc, err := Initialize(10, 100, budget)
		require.NoError(t, err)

		sampler := NewSeededSampler(int64(budget))
		for i := uint32(1); i <= budget; i++ {
			out := rc.NextBackoff(sampler.Uint32())
			require.False(t, out.RetriesExhausted(), "budget %d call %d", budget, i)
		}
		assert.True(t, rc.Exhausted())

		// Exhaustion is sticky and does not move the counter
		for i := 0; i < 3; i++ {
			out := rc.NextBackoff(sampler.Uint32())
			assert.True(t, out.RetriesExhausted())
			assert.Equal(t, budget, rc.AttemptsDone())
		}
	}
}

func TestNextBackoff_DelayWithinWindow(t *testing.T) {
	rc, err := Initialize(100, 5000, 50)
	require.NoError(t, err)

	sampler := NewSeededSampler(42)
	for !rc.Exhausted() {
		attempts := rc.AttemptsDone()
		ceiling := uint64(100) << min(attempts, 16)
		if ceiling > 5000 {
			ceiling = 5000
		}

		out := rc.NextBackoff(sampler.Uint32())
		require.False(t, out.RetriesExhausted())
		assert.LessOrEqual(t, uint64(out.DelayMs()), ceiling, "attempt %d", attempts)
		assert.Equal(t, attempts+1, rc.AttemptsDone(), "each call consumes exactly one attempt")
	}
}

func TestNextBackoff_ZeroSampleYieldsZeroDelay(t *testing.T) {
	rc, err := Initialize(1000, 3000, 3)
	require.NoError(t, err)

	out := rc.NextBackoff(0)
	assert.False(t, out.RetriesExhausted())
	assert.Equal(t, uint16(0), out.DelayMs())
	assert.Equal(t, time.Duration(0), out.Duration())
}

func TestNextBackoff_WindowSaturates(t *testing.T) {
	rc, err := Initialize(math.MaxUint16, math.MaxUint16, RetryForever)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		out := rc.NextBackoff(math.MaxUint32)
		require.False(t, out.RetriesExhausted())
		assert.LessOrEqual(t, out.DelayMs(), uint16(math.MaxUint16))
	}
	assert.Equal(t, uint16(math.MaxUint16), rc.Window())
}

func TestNextBackoff_RetryForeverNeverExhausts(t *testing.T) {
	rc, err := Initialize(1, 8, RetryForever)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		assert.False(t, rc.NextBackoff(uint32(i)).RetriesExhausted())
	}
	assert.Equal(t, uint32(1000), rc.AttemptsDone())
}

func TestNextBackoff_Deterministic(t *testing.T) {
	run := func() []uint16 {
		rc, err := Initialize(1000, 3000, 10)
		require.NoError(t, err)
		sampler := NewFixedSampler(7, 1234, 99999, 3, 0, 4000)
		var delays []uint16
		for !rc.Exhausted() {
			delays = append(delays, rc.NextBackoff(sampler.Uint32()).DelayMs())
		}
		return delays
	}

	assert.Equal(t, run(), run())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "delay(250ms)", Delay(250).String())
	assert.Equal(t, "retries_exhausted", Exhausted().String())
	assert.Equal(t, 250*time.Millisecond, Delay(250).Duration())
	assert.Equal(t, uint16(0), Exhausted().DelayMs())
}

func TestFixedSampler_RepeatsLast(t *testing.T) {
	s := NewFixedSampler(1, 2)
	assert.Equal(t, uint32(1), s.Uint32())
	assert.Equal(t, uint32(2), s.Uint32())
	assert.Equal(t, uint32(2), s.Uint32())

	empty := NewFixedSampler()
	assert.Equal(t, uint32(0), empty.Uint32())
}

func TestSleep_Elapses(t *testing.T) {
	start := time.Now()
	interrupted, err := Sleep(context.Background(), nil, 20*time.Millisecond)

	assert.NoError(t, err)
	assert.False(t, interrupted)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_WakeInterrupts(t *testing.T) {
	wake := make(chan struct{}, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		wake <- struct{}{}
	}()

	start := time.Now()
	interrupted, err := Sleep(context.Background(), wake, 5*time.Second)

	assert.NoError(t, err, "an interrupt is not an error")
	assert.True(t, interrupted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	interrupted, err := Sleep(ctx, nil, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, interrupted)
}

func TestSleep_ZeroDuration(t *testing.T) {
	interrupted, err := Sleep(context.Background(), nil, 0)
	assert.NoError(t, err)
	assert.False(t, interrupted)
}
