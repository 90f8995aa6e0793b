package livesync

import "sync/atomic"

// pollLock provides non-blocking lock semantics using atomic operations.
// A tick that cannot acquire it is skipped rather than queued.
type pollLock struct {
	state atomic.Int32 // 0 = idle, 1 = poll in flight
}

// TryAcquire claims the poll slot, reporting false if a poll is running.
func (l *pollLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the slot once the poll result has been merged.
func (l *pollLock) Release() {
	l.state.Store(0)
}
