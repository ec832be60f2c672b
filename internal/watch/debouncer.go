package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events into a single callback invocation.
// Only the last event within the configured interval is delivered.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func(Event)
	last     Event
	stopped  bool
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback with the last event seen.
func NewDebouncer(interval time.Duration, callback func(Event)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Trigger records ev. If no further events arrive within the debounce
// interval, the callback fires with the last one. Triggers after Stop are
// ignored.
func (d *Debouncer) Trigger(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.last = ev

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("debouncer callback panicked", slog.Any("error", r))
			}
		}()

		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}

		ev := d.last
		d.mu.Unlock()

		d.callback(ev)
	})
}

// Stop cancels any pending callback and disables the debouncer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
