package shm

import (
	"context"
	"sync/atomic"
	"time"
)

// waitSlice bounds a single futex wait, so that a waiter notices a done
// context without being woken.
const waitSlice = 10 * time.Millisecond

/*
A Semaphore is a counting semaphore over a 32-bit word in a shared memory
segment. Processes that map the same segment can wait on and post to it.

Post increments the count and wakes one waiter. Wait decrements the count,
sleeping in the kernel while it is zero.
*/
type Semaphore struct {
	count *uint32
}

// NewSemaphore returns a semaphore over the given word. The word is not
// initialized.
func NewSemaphore(word *uint32) *Semaphore {
	return &Semaphore{count: word}
}

// Init sets the count. It must not be called while processes wait on the
// semaphore.
func (s *Semaphore) Init(n uint32) {
	atomic.StoreUint32(s.count, n)
}

// Value returns the current count.
func (s *Semaphore) Value() int {
	return int(atomic.LoadUint32(s.count))
}

// Post increments the count and wakes a waiter.
func (s *Semaphore) Post() {
	atomic.AddUint32(s.count, 1)
	futexWake(s.count, 1)
}

// TryWait decrements the count if it is positive, and reports whether it
// did.
func (s *Semaphore) TryWait() bool {
	for {
		n := atomic.LoadUint32(s.count)
		if n == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.count, n, n-1) {
			return true
		}
	}
}

// Wait decrements the count, blocking while it is zero. It returns ctx.Err()
// if ctx is done first.
func (s *Semaphore) Wait(ctx context.Context) error {
	done := ctx.Done()
	for !s.TryWait() {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		futexWait(s.count, 0, waitSlice)
	}
	return nil
}
