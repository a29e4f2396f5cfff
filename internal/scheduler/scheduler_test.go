package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	c, err := ParseCron("10 9,10 * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{10}, c.minutes)
	assert.Equal(t, []int{9, 10}, c.hours)
	assert.Len(t, c.days, 31)

	c, err = ParseCron("*/15 0-6/2 * * 1-5")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, c.minutes)
	assert.Equal(t, []int{0, 2, 4, 6}, c.hours)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, c.weekday)

	for _, bad := range []string{"", "* * * *", "60 * * * *", "* 5-2 * * *", "*/0 * * * *", "a * * * *", "1,,2 * * * *"} {
		_, err := ParseCron(bad)
		assert.Error(t, err, bad)
	}
}

func TestCronNext(t *testing.T) {
	c, err := ParseCron("10 9,10 * * *")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC), c.Next(base))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC), c.Next(time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 3, 2, 9, 10, 0, 0, time.UTC), c.Next(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)))
}

func TestCronNextWeekdayAndMonthRollover(t *testing.T) {
	c, err := ParseCron("0 2 * * 0")
	require.NoError(t, err)
	// 2026-03-04 是周三
	next := c.Next(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Sunday, next.Weekday())
	assert.Equal(t, time.Date(2026, 3, 8, 2, 0, 0, 0, time.UTC), next)

	c, err = ParseCron("30 6 1 * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 1, 1, 6, 30, 0, 0, time.UTC), c.Next(time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)))
}

func TestTriggerRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s, err := New("* * * * *", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background()) }()
	<-started
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Trigger(context.Background()), ErrBusy)
	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Running())
}

func TestLoopRunsOnEachTick(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New("10 9,10 * * *", func(context.Context) error {
		if runs.Add(1) == 2 {
			cancel()
		}
		return nil
	}, nil)
	require.NoError(t, err)

	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	var waits []time.Duration
	s.now = func() time.Time { return clock }
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		clock = clock.Add(d)
		ch := make(chan time.Time, 1)
		ch <- clock
		return ch
	}

	s.Loop(ctx)
	assert.Equal(t, int32(2), runs.Load())
	require.GreaterOrEqual(t, len(waits), 2)
	assert.Equal(t, 70*time.Minute, waits[0])
	assert.Equal(t, time.Hour, waits[1])
}
