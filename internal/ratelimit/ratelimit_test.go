// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// maxInAnyWindow returns the largest number of admissions inside any
// half-open Window-long interval starting at an admission.
func maxInAnyWindow(times []time.Time) int {
	best := 0
	for i, start := range times {
		n := 0
		for _, t := range times[i:] {
			if t.Sub(start) < Window {
				n++
			}
		}
		if n > best {
			best = n
		}
	}
	return best
}

func TestWait_BurstNeverExceedsCeiling(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Class]int{ClassSubmit: 10}, WithClock(clock))

	var admitted []time.Time
	for i := 0; i < 35; i++ {
		require.NoError(t, l.Wait(context.Background(), ClassSubmit, "tok"))
		admitted = append(admitted, clock.Now())
		clock.Advance(100 * time.Millisecond)
	}

	assert.LessOrEqual(t, maxInAnyWindow(admitted), 10)
	// 35 calls at ceiling 10 need at least three full windows.
	assert.GreaterOrEqual(t, admitted[len(admitted)-1].Sub(admitted[0]), 3*Window)
}

func TestWait_ConcurrentCallersShareWindow(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := New(map[Class]int{ClassPoll: 5}, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background(), ClassPoll, "tok"))
		}()
	}
	wg.Wait()

	// 20 admissions at 5 per window: the last batch starts after three
	// full windows have elapsed.
	assert.GreaterOrEqual(t, clock.Now().Sub(start), 3*Window)
	assert.LessOrEqual(t, l.inFlight(ClassPoll, "tok"), 5)
}

func TestWait_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Class]int{ClassSubmit: 2, ClassPoll: 2}, WithClock(clock))
	ctx := context.Background()

	for _, cred := range []string{"a", "b"} {
		for _, class := range []Class{ClassSubmit, ClassPoll} {
			require.NoError(t, l.Wait(ctx, class, cred))
			require.NoError(t, l.Wait(ctx, class, cred))
		}
	}
	// Eight admissions at ceiling 2 per key, no sleeps needed.
	assert.Equal(t, newFakeClock().Now(), clock.Now())
	assert.Equal(t, 2, l.inFlight(ClassSubmit, "a"))
	assert.Equal(t, 2, l.inFlight(ClassPoll, "b"))
}

func TestWait_EvictsAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(map[Class]int{ClassSubmit: 1}, WithClock(clock))
	require.NoError(t, l.Wait(context.Background(), ClassSubmit, "x"))
	assert.Equal(t, 1, l.inFlight(ClassSubmit, "x"))
	clock.Advance(Window)
	assert.Equal(t, 0, l.inFlight(ClassSubmit, "x"))
}

func TestWait_UnlimitedClass(t *testing.T) {
	l := New(nil)
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Wait(context.Background(), ClassSubmit, "x"))
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(map[Class]int{ClassSubmit: 1})
	require.NoError(t, l.Wait(context.Background(), ClassSubmit, "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, ClassSubmit, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, l.inFlight(ClassSubmit, "x"))
}
