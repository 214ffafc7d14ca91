// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock stopped at start. It is safe for concurrent
// use.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a Clock whose time moves only on Advance. After, Sleep
// and AfterFunc register pending timers that fire, in deadline order,
// once Advance carries the clock past their deadline.
//
// AfterFunc callbacks run synchronously inside Advance, so they must
// not call Advance themselves.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingTimer
	counter uint64
	changed *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	sequence uint64
	ready    chan time.Time
	callback func()
	done     bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ready := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ready <- c.now
		return ready
	}
	c.addLocked(&pendingTimer{deadline: c.now.Add(d), ready: ready})
	return ready
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	timer := &pendingTimer{deadline: c.now.Add(d), callback: f}
	c.addLocked(timer)
	c.mu.Unlock()
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		c.pending = slices.DeleteFunc(c.pending, func(p *pendingTimer) bool { return p == timer })
		c.changed.Broadcast()
		return true
	}}
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

func (c *FakeClock) addLocked(timer *pendingTimer) {
	c.counter++
	timer.sequence = c.counter
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

// Advance moves the clock forward by d and fires every timer whose
// deadline is at or before the new time, in deadline order. The clock
// reads each timer's deadline while it fires, so timers registered by
// a callback during Advance fire in the same call if they fall within
// d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		timer := c.popDue(target)
		if timer == nil {
			break
		}
		if timer.callback != nil {
			timer.callback()
			continue
		}
		timer.ready <- timer.deadline
	}

	c.mu.Lock()
	if c.now.Before(target) {
		c.now = target
	}
	c.mu.Unlock()
}

// popDue removes the earliest timer due by target, moves the clock to
// its deadline, and returns it. It returns nil when none is due.
func (c *FakeClock) popDue(target time.Time) *pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := -1
	for i, timer := range c.pending {
		if timer.deadline.After(target) {
			continue
		}
		if index < 0 || earlier(timer, c.pending[index]) {
			index = i
		}
	}
	if index < 0 {
		return nil
	}
	timer := c.pending[index]
	timer.done = true
	c.pending = slices.Delete(c.pending, index, index+1)
	if timer.deadline.After(c.now) {
		c.now = timer.deadline
	}
	c.changed.Broadcast()
	return timer
}

func earlier(a, b *pendingTimer) bool {
	if a.deadline.Equal(b.deadline) {
		return a.sequence < b.sequence
	}
	return a.deadline.Before(b.deadline)
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers that have not fired or
// been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
