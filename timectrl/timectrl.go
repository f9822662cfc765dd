// Package timectrl drives the fixed-step simulation clock shared by the
// scheduler and the world.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow, still stepping by Tick.
	Accelerated
)

// Tick is delivered to listeners each time the clock advances.
type Tick struct {
	Index   int64
	Now     time.Time
	Elapsed float64 // seconds since StartTime
	Step    float64 // seconds per tick
}

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	index       int64

	listeners []func(Tick)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulation seconds since StartTime.
func (tc *TimeController) Elapsed() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime).Seconds()
}

// Ticks returns how many ticks have been delivered.
func (tc *TimeController) Ticks() int64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.index
}

// SetTime moves the clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(Tick)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances the clock by one tick and runs the listeners synchronously.
func (tc *TimeController) Step() Tick {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.index++
	tick := Tick{
		Index:   tc.index,
		Now:     tc.currentTime,
		Elapsed: tc.currentTime.Sub(tc.StartTime).Seconds(),
		Step:    tc.Tick.Seconds(),
	}
	listeners := make([]func(Tick), len(tc.listeners))
	copy(listeners, tc.listeners)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(tick)
	}
	return tick
}

// Start runs the controller for the specified simulated duration in a
// separate goroutine; a non-positive duration runs until ctx is cancelled.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var wait <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			wait = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if wait != nil {
				select {
				case <-ctx.Done():
					return
				case <-wait:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.Step()
			elapsed += tc.Tick
		}
	}()
	return done
}
