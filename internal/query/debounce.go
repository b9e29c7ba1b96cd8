package query

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period applied to free-text search
// input before a criteria change is committed.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer buffers spec submissions and commits only the latest one
// after a quiet period. A new submission within the period cancels and
// restarts the pending commit, so the callback runs once per pause in
// input rather than once per keystroke. At most one commit is pending
// at a time.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	commit  func(Spec)
	timer   *time.Timer
	stopped bool
}

// NewDebouncer returns a debouncer invoking commit after delay. A
// non-positive delay falls back to DefaultDebounce.
func NewDebouncer(delay time.Duration, commit func(Spec)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, commit: commit}
}

// Submit schedules spec for commit, discarding any pending one.
func (d *Debouncer) Submit(spec Spec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.commit(spec)
	})
}

// Stop cancels any pending commit. Further submissions are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
