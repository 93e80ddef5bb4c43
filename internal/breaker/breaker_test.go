package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		ErrorThreshold: 0.5,
		MinVolume:      4,
		Window:         100 * time.Millisecond,
		Buckets:        10,
		ResetTimeout:   50 * time.Millisecond,
	}
}

func TestBreaker_OpensAfterErrorRateThreshold(t *testing.T) {
	// Given: a breaker with a 50% error threshold and volume 4
	b := New("test", testConfig(), nil)
	require.Equal(t, Closed, b.State())

	// When: 2 successes and 2 failures are reported (50% error rate)
	b.Report(true)
	b.Report(true)
	b.Report(false)
	b.Report(false)

	// Then: the breaker trips open
	assert.Equal(t, Open, b.State())
}

func TestBreaker_StaysClosedBelowMinVolume(t *testing.T) {
	// Given: a breaker that hasn't met MinVolume yet
	b := New("test", testConfig(), nil)

	// When: 2 of 2 calls fail (100% error rate, but below MinVolume=4)
	b.Report(false)
	b.Report(false)

	// Then: it remains closed
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpenRejectsUntilResetTimeout(t *testing.T) {
	// Given: an open breaker
	cfg := testConfig()
	b := New("test", cfg, nil)
	for i := 0; i < 4; i++ {
		b.Report(false)
	}
	require.Equal(t, Open, b.State())

	// Then: calls are rejected immediately
	assert.False(t, b.Allow())

	// When: the reset timeout elapses
	time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)

	// Then: a single half-open probe is allowed
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())

	// And: a second concurrent probe is rejected while one is in flight
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg, nil)
	for i := 0; i < 4; i++ {
		b.Report(false)
	}
	time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)
	require.True(t, b.Allow())

	// When: the probe call succeeds
	b.Report(true)

	// Then: the breaker closes
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg, nil)
	for i := 0; i < 4; i++ {
		b.Report(false)
	}
	time.Sleep(cfg.ResetTimeout + 10*time.Millisecond)
	require.True(t, b.Allow())

	// When: the probe call fails
	b.Report(false)

	// Then: the breaker reopens immediately (not another full window)
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_OnStateChangeCallback(t *testing.T) {
	var transitions []string
	var mu sync.Mutex
	onChange := func(name string, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	cfg := testConfig()
	b := New("engine-search", cfg, onChange)

	for i := 0; i < 4; i++ {
		b.Report(false)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, "closed->open", transitions[0])
}

func TestExecute_RunsAndReportsSuccess(t *testing.T) {
	b := New("test", testConfig(), nil)

	result, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecute_FailsFastWhenOpen(t *testing.T) {
	cfg := testConfig()
	b := New("test", cfg, nil)
	for i := 0; i < 4; i++ {
		b.Report(false)
	}
	require.Equal(t, Open, b.State())

	calls := 0
	_, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		calls++
		return "unreached", nil
	})

	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 0, calls, "the wrapped function must not run when the breaker is open")
}

func TestExecute_PropagatesUnderlyingError(t *testing.T) {
	b := New("test", testConfig(), nil)
	boom := errors.New("boom")

	_, err := Execute(context.Background(), b, func(ctx context.Context) (string, error) {
		return "", boom
	})

	assert.ErrorIs(t, err, boom)
}

func TestBreaker_StateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
}

func TestBreaker_ConcurrentReportsDoNotPanic(t *testing.T) {
	b := New("test", testConfig(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Report(i%2 == 0)
			b.Allow()
		}(i)
	}
	wg.Wait()
}
