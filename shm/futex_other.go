//go:build !linux

package shm

import "time"

const pollInterval = 50 * time.Microsecond

// futexWait sleeps briefly; callers re-check the word anyway.
func futexWait(_ *uint32, _ uint32, timeout time.Duration) {
	time.Sleep(min(timeout, pollInterval))
}

func futexWake(*uint32, int) {}
