package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Real{}.Sleep(ctx, time.Minute)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRealSleepElapses(t *testing.T) {
	err := Real{}.Sleep(context.Background(), 5*time.Millisecond)
	assert.NoError(t, err)
}

func TestManualSleepAdvances(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(base)

	require.NoError(t, c.Sleep(context.Background(), 3*time.Second))
	assert.Equal(t, base.Add(3*time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, base.Add(63*time.Second), c.Now())
}

func TestManualSleepCancelled(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	assert.Equal(t, base, c.Now())
}
