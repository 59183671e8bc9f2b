package client

import (
	"sync"
	"time"
)

// TypingIndicator tracks whether the other side is typing. It is keyed by
// the last sender seen and clears itself after timeout without a refresh.
type TypingIndicator struct {
	mu       sync.Mutex
	timeout  time.Duration
	active   bool
	from     int64
	gen      uint64
	timer    *time.Timer
	onChange func(active bool, from int64)
}

// NewTypingIndicator creates an indicator. onChange, if set, is called
// outside the lock whenever the state flips.
func NewTypingIndicator(timeout time.Duration, onChange func(active bool, from int64)) *TypingIndicator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TypingIndicator{timeout: timeout, onChange: onChange}
}

// Start marks from as typing and restarts the timeout.
func (t *TypingIndicator) Start(from int64) {
	t.mu.Lock()
	changed := !t.active || t.from != from
	t.active = true
	t.from = from
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, func() { t.expire(gen) })
	t.mu.Unlock()

	if changed {
		t.notify(true, from)
	}
}

// Stop clears the indicator when from is the sender it was set for. A zero
// from clears it regardless.
func (t *TypingIndicator) Stop(from int64) {
	t.mu.Lock()
	if !t.active || (from != 0 && from != t.from) {
		t.mu.Unlock()
		return
	}
	last := t.clearLocked()
	t.mu.Unlock()

	t.notify(false, last)
}

func (t *TypingIndicator) expire(gen uint64) {
	t.mu.Lock()
	if !t.active || gen != t.gen {
		t.mu.Unlock()
		return
	}
	last := t.clearLocked()
	t.mu.Unlock()

	t.notify(false, last)
}

func (t *TypingIndicator) clearLocked() int64 {
	last := t.from
	t.active = false
	t.from = 0
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	return last
}

// Active returns the sender currently typing, if any.
func (t *TypingIndicator) Active() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.from, t.active
}

func (t *TypingIndicator) notify(active bool, from int64) {
	if t.onChange != nil {
		t.onChange(active, from)
	}
}
