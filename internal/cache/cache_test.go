package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// SingleFlight never touches the Redis client, so it can be exercised
// without a live connection — unlike Get/Set/Delete/DeletePattern,
// which need an integration environment.

func TestSingleFlight_ConcurrentCallsShareOneExecution(t *testing.T) {
	c := New(nil)

	var executions int32
	var wg sync.WaitGroup
	results := make([]interface{}, 20)

	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err, _ := c.SingleFlight("same-key", func() (interface{}, error) {
				atomic.AddInt32(&executions, 1)
				return "shared-response", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared-response", r)
	}
	assert.Equal(t, int32(1), executions, "concurrent misses on the same key must collapse to one execution")
}

func TestSingleFlight_DistinctKeysExecuteIndependently(t *testing.T) {
	c := New(nil)

	v1, err1, _ := c.SingleFlight("key-a", func() (interface{}, error) { return "a", nil })
	v2, err2, _ := c.SingleFlight("key-b", func() (interface{}, error) { return "b", nil })

	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, "a", v1)
	assert.Equal(t, "b", v2)
}

func TestSingleFlight_PropagatesError(t *testing.T) {
	c := New(nil)
	boom := errors.New("boom")

	_, err, _ := c.SingleFlight("key", func() (interface{}, error) { return nil, boom })

	assert.ErrorIs(t, err, boom)
}
