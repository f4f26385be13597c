package internal

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

type runtimeError struct{ error }

func (runtimeError) RuntimeError() {}

// WrapPanic adds stack trace information to a recovered panic.
func WrapPanic(p interface{}) interface{} {
	if p != nil {
		s := fmt.Sprintf("%v\n%s\nrethrown at", p, debug.Stack())
		if _, isError := p.(error); isError {
			r := errors.New(s)
			if _, isRuntimeError := p.(runtime.Error); isRuntimeError {
				return runtimeError{r}
			}
			return r
		}
		return s
	}
	return nil
}

// Panics collects the recovered panics of a fixed set of workers, so that the
// coordinator can rethrow the left-most one.
type Panics struct {
	mu     sync.Mutex
	values []interface{}
}

// NewPanics returns a collector for the given number of workers.
func NewPanics(workers int) *Panics {
	return &Panics{values: make([]interface{}, workers)}
}

// Recover records the wrapped value of p for the given worker. It reports
// whether p was a panic.
func (ps *Panics) Recover(worker int, p interface{}) bool {
	if p == nil {
		return false
	}
	ps.mu.Lock()
	ps.values[worker] = WrapPanic(p)
	ps.mu.Unlock()
	return true
}

// First returns the left-most recorded panic, or nil.
func (ps *Panics) First() interface{} {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, p := range ps.values {
		if p != nil {
			return p
		}
	}
	return nil
}

// Rethrow panics with the left-most recorded panic, if any.
func (ps *Panics) Rethrow() {
	if p := ps.First(); p != nil {
		panic(p)
	}
}
