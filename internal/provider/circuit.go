package provider

import (
	"sync"
	"time"
)

// verdict is how a finished call reflects on the upstream's health. A call
// is faulty on a transport failure, timeout or 5xx, and abandoned when the
// caller gave up before an answer arrived.
type verdict int

const (
	healthy verdict = iota
	faulty
	abandoned
)

// circuit stops calling the provider after threshold consecutive faults.
// Once cooldown has passed it admits a single trial call whose verdict
// either closes the circuit or restarts the cooldown.
type circuit struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	faults    int
	openUntil time.Time // zero while closed
	trial     bool
}

func newCircuit(threshold int, cooldown time.Duration) *circuit {
	if threshold <= 0 {
		threshold = 3
	}
	return &circuit{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// ready reports whether admit would currently let a call through.
func (c *circuit) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openUntil.IsZero() || (!c.trial && c.now().After(c.openUntil))
}

// admit claims a call slot. While open, only the trial call is admitted.
func (c *circuit) admit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openUntil.IsZero() {
		return true
	}
	if c.trial || !c.now().After(c.openUntil) {
		return false
	}
	c.trial = true
	return true
}

func (c *circuit) report(v verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch v {
	case healthy:
		c.faults = 0
		c.openUntil = time.Time{}
		c.trial = false
	case abandoned:
		c.trial = false
	case faulty:
		if c.trial {
			c.trial = false
			c.openUntil = c.now().Add(c.cooldown)
			return
		}
		c.faults++
		if c.faults >= c.threshold {
			c.openUntil = c.now().Add(c.cooldown)
		}
	}
}
