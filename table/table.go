/*
Package table provides the worker result table that the strategies of
modprod synchronize on.

A Table consists of one split per worker plus a shared counter. Each split
holds the worker's partial residue and its done flag, and occupies its own
cache line, so that workers writing their own splits do not contend with
each other. All accesses to splits go through atomic operations, which makes
a worker's writes visible to any goroutine that subsequently observes them,
including a coordinator polling the done flags without any other
synchronization.

A Table lives either in private memory (New) or in caller-supplied words
(View), such as a mapped shared memory segment.
*/
package table

import (
	"fmt"
	"sync/atomic"

	"github.com/rsario/modprod"
)

// CacheLineSize is the cache line size splits are aligned to.
const CacheLineSize = 64

// stride is the number of 32-bit words per split.
const stride = CacheLineSize / 4

const (
	resultWord = 0
	doneWord   = 1
)

/*
Words returns the number of 32-bit words a Table for the given number of
workers occupies: one cache line per worker split, and one for the finished
counter.
*/
func Words(workers int) int {
	return (workers + 1) * stride
}

/*
A Table holds a residue and a done flag per worker, and a finished counter.

The zero Table is not valid.
*/
type Table struct {
	words   []uint32
	workers int
}

var _ modprod.Results = (*Table)(nil)

// New returns a reset table for the given number of workers.
func New(workers int) *Table {
	if workers < 1 {
		panic(fmt.Sprintf("invalid number of workers: %v", workers))
	}
	t := &Table{words: make([]uint32, Words(workers)), workers: workers}
	t.Reset()
	return t
}

/*
View returns a table for the given number of workers backed by words, which
must hold at least Words(workers) elements. The contents of words are left
as they are; call Reset to initialize them.
*/
func View(words []uint32, workers int) (*Table, error) {
	if workers < 1 {
		return nil, fmt.Errorf("invalid number of workers: %v", workers)
	}
	if need := Words(workers); len(words) < need {
		return nil, fmt.Errorf("table for %d workers needs %d words, got %d", workers, need, len(words))
	}
	return &Table{words: words[:Words(workers)], workers: workers}, nil
}

func (t *Table) word(worker, offset int) *uint32 {
	if worker < 0 || worker >= t.workers {
		panic(fmt.Sprintf("invalid worker: %v", worker))
	}
	return &t.words[worker*stride+offset]
}

func (t *Table) counter() *uint32 {
	return &t.words[t.workers*stride]
}

// Workers returns the number of worker splits.
func (t *Table) Workers() int {
	return t.workers
}

/*
Reset sets every residue to modprod.Identity, clears every done flag, and
zeroes the finished counter.

Reset must not be called while workers of a previous run may still write to
the table.
*/
func (t *Table) Reset() {
	for i := 0; i < t.workers; i++ {
		atomic.StoreUint32(t.word(i, resultWord), modprod.Identity)
		atomic.StoreUint32(t.word(i, doneWord), 0)
	}
	atomic.StoreUint32(t.counter(), 0)
}

// Load returns the residue of the given worker.
func (t *Table) Load(worker int) uint32 {
	return atomic.LoadUint32(t.word(worker, resultWord))
}

// Store sets the residue of the given worker.
func (t *Table) Store(worker int, residue uint32) {
	atomic.StoreUint32(t.word(worker, resultWord), residue)
}

// MarkDone sets the done flag of the given worker.
func (t *Table) MarkDone(worker int) {
	atomic.StoreUint32(t.word(worker, doneWord), 1)
}

// Done reports whether the done flag of the given worker is set.
func (t *Table) Done(worker int) bool {
	return atomic.LoadUint32(t.word(worker, doneWord)) != 0
}

// AllDone reports whether every done flag was set during a single sweep.
func (t *Table) AllDone() bool {
	for i := 0; i < t.workers; i++ {
		if !t.Done(i) {
			return false
		}
	}
	return true
}

// Finish increments the finished counter and returns its new value.
func (t *Table) Finish() int {
	return int(atomic.AddUint32(t.counter(), 1))
}

// Finished returns the value of the finished counter.
func (t *Table) Finished() int {
	return int(atomic.LoadUint32(t.counter()))
}

// Snapshot returns a copy of the residues, in worker order.
func (t *Table) Snapshot() []uint32 {
	residues := make([]uint32, t.workers)
	for i := range residues {
		residues[i] = t.Load(i)
	}
	return residues
}
