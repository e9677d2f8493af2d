package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_Spacing(t *testing.T) {
	t.Parallel()
	th := NewThrottle(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, th.Wait(ctx))
	assert.Less(t, time.Since(start), 25*time.Millisecond, "first call is not delayed")
	th.Done()

	require.NoError(t, th.Wait(ctx))
	th.Done()
	require.NoError(t, th.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestThrottle_DelayCountsFromCallEnd(t *testing.T) {
	t.Parallel()
	th := NewThrottle(100 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx))
	time.Sleep(150 * time.Millisecond) // a call slower than the delay
	th.Done()

	start := time.Now()
	require.NoError(t, th.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond,
		"a slow call still gets the full pause before the next one")
}

func TestThrottle_Disabled(t *testing.T) {
	t.Parallel()
	th := NewThrottle(0)
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, th.Wait(context.Background()))
		th.Done()
	}
	assert.Less(t, time.Since(start), 25*time.Millisecond)

	var nilThrottle *Throttle
	assert.NoError(t, nilThrottle.Wait(context.Background()))
	nilThrottle.Done()
}

func TestThrottle_Cancelled(t *testing.T) {
	t.Parallel()
	th := NewThrottle(time.Hour)
	require.NoError(t, th.Wait(context.Background()))
	th.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, th.Wait(ctx))
}
