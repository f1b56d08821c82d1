package ringbuf

import (
	"sync"
	"time"
)

// Blocking adds condition-variable producer/consumer semantics on top of a
// RingBuffer: a single producer goroutine blocks in AppendWait when the
// buffer is full until a consumer drains it, and a single consumer
// goroutine blocks in ConsumeWait until enough bytes arrive or a timeout
// elapses. This is the pattern the charger-serial reader uses (one
// producer thread draining the OS port, one consumer thread decoding
// charger frames) and the one the app-protocol receive path would use if
// its producer and consumer ran on separate goroutines.
type Blocking struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     *RingBuffer
	stopped bool
}

// NewBlocking wraps a new RingBuffer of the given capacity.
func NewBlocking(capacity int) *Blocking {
	b := &Blocking{buf: New(capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Stop wakes any blocked producer or consumer permanently; subsequent
// calls to AppendWait/ConsumeWait return immediately.
func (b *Blocking) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Clear discards all unread bytes.
func (b *Blocking) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Clear()
}

// AppendWait appends data, blocking and retrying while the buffer has no
// room, until it succeeds or Stop is called. It reports whether the data
// was appended.
func (b *Blocking) AppendWait(data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.stopped {
		if b.buf.Append(data) {
			b.cond.Broadcast()
			return true
		}
		b.cond.Wait()
	}
	return false
}

// ConsumeWait returns the next n bytes, blocking up to timeout for enough
// bytes to accumulate. It returns nil on timeout or after Stop.
func (b *Blocking) ConsumeWait(n int, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if data := b.buf.Consume(n); data != nil {
			b.cond.Broadcast()
			return data
		}
		if b.stopped {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		waitOn(b.cond, remaining)
	}
}

// waitOn blocks on cond for at most d; it does not report whether it was
// signaled or timed out. sync.Cond has no native timeout, so a helper
// goroutine nudges it when the timer expires.
func waitOn(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() { cond.Broadcast() })
	defer timer.Stop()
	cond.Wait()
}
