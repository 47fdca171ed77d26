package watchdog

import (
	"sync"
	"time"
)

// Watchdog is a single restartable countdown. Reset cancels any pending
// countdown and starts a new one from the full timeout; there is no
// partial or backoff behavior. When the countdown expires the onExpire
// callback runs once. A voice session with no activity from either party
// for the full interval is treated as an abandoned call.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// New creates a watchdog. It is not armed until the first Reset.
func New(timeout time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// Reset cancels any pending countdown and starts a new one from the full
// timeout. No-op after Stop.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}

	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.timeout, func() {
		w.expire(gen)
	})
}

// Stop cancels the countdown permanently. Safe to call multiple times and
// concurrently with an expiring timer.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watchdog) expire(gen uint64) {
	w.mu.Lock()
	// A Reset or Stop that raced the firing timer wins: only the current
	// generation may expire.
	if w.stopped || gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.timer = nil
	w.mu.Unlock()

	w.onExpire()
}
