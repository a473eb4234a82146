// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package debounce delays a call until its input has been quiet for a while.
// It is an input-side rate limiter; it knows nothing about submission tokens.
package debounce

import (
	"sync"
	"time"
)

// Debouncer calls fn with the latest triggered value once no new value has
// arrived for the configured delay.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	armed   bool
	gen     uint64
}

// New returns a Debouncer. A non-positive delay fires on every Trigger.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Trigger records v and restarts the quiet period.
func (d *Debouncer[T]) Trigger(v T) {
	if d.delay <= 0 {
		d.fn(v)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = v
	d.armed = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs fn unless a later Trigger, Flush or Stop superseded timer gen.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if !d.armed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.clearLocked()
	d.mu.Unlock()

	d.fn(v)
}

// Flush calls fn with the pending value now, if there is one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return false
	}
	v := d.pending
	d.clearLocked()
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Stop drops the pending value without calling fn.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
}

// Pending reports whether a value is waiting for the quiet period to end.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer[T]) clearLocked() {
	var zero T
	d.pending = zero
	d.armed = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
