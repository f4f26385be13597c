package shm

import (
	"fmt"

	"github.com/rsario/modprod/table"
)

// lineWords is the number of 32-bit words in a cache line.
const lineWords = table.CacheLineSize / 4

// TableSize returns the size in bytes of a shared table for the given number
// of workers: the result table followed by one cache line per semaphore.
func TableSize(workers int) int {
	return (table.Words(workers) + 2*lineWords) * 4
}

/*
A SharedTable is a result table in a named segment, together with the two
semaphores that the signalling strategy needs when its workers are separate
processes: Guard serializes the increments of the finished counter, and
Completed wakes the coordinator.
*/
type SharedTable struct {
	*table.Table
	Guard     *Semaphore
	Completed *Semaphore

	// Name is the name of the segment.
	Name string

	seg *Segment
}

func viewTable(name string, seg *Segment, workers int) (*SharedTable, error) {
	words := seg.Uint32s()
	n := table.Words(workers)
	if len(words) < n+2*lineWords {
		return nil, fmt.Errorf("%w: table for %d workers needs %d bytes, segment has %d",
			ErrSegmentTooSmall, workers, TableSize(workers), len(seg.Mem))
	}
	t, err := table.View(words[:n], workers)
	if err != nil {
		return nil, err
	}
	return &SharedTable{
		Table:     t,
		Guard:     NewSemaphore(&words[n]),
		Completed: NewSemaphore(&words[n+lineWords]),
		Name:      name,
		seg:       seg,
	}, nil
}

// CreateTable creates the segment with the given name, sized for a result
// table of the given number of workers, and returns the reset table that
// lives in it. Guard starts at 1 and Completed at 0.
func CreateTable(name string, workers int) (*SharedTable, error) {
	if workers < 1 {
		return nil, fmt.Errorf("invalid number of workers: %v", workers)
	}
	seg, err := Create(name, TableSize(workers))
	if err != nil {
		return nil, err
	}
	t, err := viewTable(name, seg, workers)
	if err != nil {
		seg.Close()
		seg.Unlink()
		return nil, err
	}
	t.Reset()
	t.Guard.Init(1)
	t.Completed.Init(0)
	return t, nil
}

// OpenTable maps the result table another process created under the given
// name. Its contents are left as they are.
func OpenTable(name string, workers int) (*SharedTable, error) {
	if workers < 1 {
		return nil, fmt.Errorf("invalid number of workers: %v", workers)
	}
	seg, err := Open(name)
	if err != nil {
		return nil, err
	}
	t, err := viewTable(name, seg, workers)
	if err != nil {
		seg.Close()
		return nil, err
	}
	return t, nil
}

// Segment returns the segment the table lives in.
func (t *SharedTable) Segment() *Segment {
	return t.seg
}

// Close unmaps the table. The segment persists until Unlink.
func (t *SharedTable) Close() error {
	return t.seg.Close()
}

// Unlink removes the segment name.
func (t *SharedTable) Unlink() error {
	return t.seg.Unlink()
}
