// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit enforces per-credential request ceilings over a trailing
// one-minute window. A single Limiter is shared by every goroutine that
// talks to a rate-limited service.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window is the trailing interval over which calls are counted.
const Window = 60 * time.Second

// slack is added to computed sleeps so the oldest entry has certainly left
// the window when the waiter wakes.
const slack = 10 * time.Millisecond

// Class names an endpoint family with its own ceiling.
type Class string

const (
	ClassSubmit Class = "submit"
	ClassPoll   Class = "poll"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type key struct {
	class Class
	cred  string
}

// window holds admitted call times in ascending order. mu is held for the
// whole admission, including sleeps, so callers sharing a key queue FIFO.
type window struct {
	mu    sync.Mutex
	times []time.Time
}

// Limiter admits calls so that no (class, credential) pair exceeds its
// ceiling within any Window-long interval.
type Limiter struct {
	clock    Clock
	ceilings map[Class]int

	mu      sync.Mutex
	windows map[key]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New returns a Limiter with the given per-class ceilings in calls per
// Window. A class with no ceiling, or a ceiling <= 0, is unlimited.
func New(ceilings map[Class]int, opts ...Option) *Limiter {
	l := &Limiter{
		clock:    realClock{},
		ceilings: make(map[Class]int, len(ceilings)),
		windows:  make(map[key]*window),
	}
	for c, n := range ceilings {
		l.ceilings[c] = n
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) window(k key) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[k]
	if !ok {
		w = &window{}
		l.windows[k] = w
	}
	return w
}

// Wait blocks until a call of class for credential can be admitted, then
// records it. It returns ctx.Err() if the context ends first; the call is
// not recorded in that case.
func (l *Limiter) Wait(ctx context.Context, class Class, credential string) error {
	ceiling := l.ceilings[class]
	if ceiling <= 0 {
		return ctx.Err()
	}

	w := l.window(key{class, credential})
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		now := l.clock.Now()
		w.evict(now)
		if len(w.times) < ceiling {
			w.times = append(w.times, now)
			return nil
		}
		d := w.times[0].Add(Window).Sub(now) + slack
		if err := l.clock.Sleep(ctx, d); err != nil {
			return fmt.Errorf("waiting for %s slot: %w", class, err)
		}
	}
}

// inFlight returns the number of calls recorded in the current window for
// class and credential.
func (l *Limiter) inFlight(class Class, credential string) int {
	w := l.window(key{class, credential})
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(l.clock.Now())
	return len(w.times)
}

// evict drops entries that are Window or more old.
func (w *window) evict(now time.Time) {
	i := 0
	for i < len(w.times) && now.Sub(w.times[i]) >= Window {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}
