package listfetch

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid values; fire runs with the last value once no new
// value arrived for the window.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	fire    func(string)
	timer   *time.Timer
	seq     uint64
	pending string
	armed   bool
	stopped bool
}

func NewDebouncer(window time.Duration, fire func(string)) *Debouncer {
	return &Debouncer{window: window, fire: fire}
}

func (d *Debouncer) Push(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.seq++
	seq := d.seq
	d.pending = value
	d.armed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped || !d.armed || d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.armed = false
		value := d.pending
		d.mu.Unlock()
		d.fire(value)
	})
}

// Flush fires a pending value immediately. It reports whether one was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.armed {
		d.mu.Unlock()
		return false
	}
	d.armed = false
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
	}
	value := d.pending
	d.mu.Unlock()

	d.fire(value)
	return true
}

// Pending reports whether a value is waiting for the window to elapse.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
