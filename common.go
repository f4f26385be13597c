package modprod

import (
	"context"
	"fmt"
)

const (
	// DefaultModulus is the fixed modulus every product is reduced by.
	DefaultModulus uint32 = 9973

	// Identity is the value every result slot holds after a reset.
	Identity uint32 = 1

	// ZeroSentinel marks a partition whose true product is zero.
	ZeroSentinel uint32 = 0
)

type (
	// A Strategy runs the workers of a job under one coordination discipline
	// and returns the combined residue.
	//
	// If release is not nil, some workers may still be running when the
	// Strategy returns. Calling release cancels them and waits until they have
	// terminated; it must be called before the job's results are reset.
	Strategy func(ctx context.Context, job Job) (residue uint32, release func(), err error)

	// A RangeReducer computes the residue of a single worker range.
	RangeReducer func(r Range) uint32
)

// Results is the shared state workers report into. Each worker writes only
// its own slot. Implementations must make Store and MarkDone visible to
// goroutines that subsequently observe Done or Load.
type Results interface {
	// Workers returns the number of slots.
	Workers() int

	// Load returns the residue in the slot of the given worker.
	Load(worker int) uint32

	// Store writes the residue for the given worker.
	Store(worker int, residue uint32)

	// MarkDone sets the done flag of the given worker.
	MarkDone(worker int)

	// Done reports whether the done flag of the given worker is set.
	Done(worker int) bool

	// Finish increments the finished counter and returns its new value.
	// Callers serialize calls to Finish themselves.
	Finish() int
}

// A Range is the contiguous index range of the dataset assigned to one
// worker, from Low to High inclusive. A Range with High < Low is empty.
type Range struct {
	Worker int
	Low    int
	High   int
}

// Len returns the number of elements in r.
func (r Range) Len() int {
	if r.High < r.Low {
		return 0
	}
	return r.High - r.Low + 1
}

/*
Partition divides a dataset of the given size into one contiguous range per
worker.

Each worker i receives the chunk [i*chunk, (i+1)*chunk - 1], where chunk is
size / workers, except for the last worker, which receives everything from
(workers-1)*chunk up to size-1 and so absorbs the remainder of the division.
The ranges are disjoint and their union is exactly [0, size).

If there are more workers than elements, chunk is 0 and all workers but the
last receive an empty range.

Partition panics if size < 0 or workers < 1.
*/
func Partition(size, workers int) []Range {
	if size < 0 {
		panic(fmt.Sprintf("invalid size: %v", size))
	}
	if workers < 1 {
		panic(fmt.Sprintf("invalid number of workers: %v", workers))
	}
	chunk := size / workers
	ranges := make([]Range, workers)
	for i := range ranges {
		high := (i+1)*chunk - 1
		if i == workers-1 {
			high = size - 1
		}
		ranges[i] = Range{Worker: i, Low: i * chunk, High: high}
	}
	return ranges
}

// MulMod returns x*y reduced by modulus.
func MulMod(x, y, modulus uint32) uint32 {
	return uint32(uint64(x) * uint64(y) % uint64(modulus))
}

// RangeProduct returns the product of data[low..high] (inclusive) modulo
// modulus, reducing after every multiplication. It returns ZeroSentinel as
// soon as it meets a zero element, without looking at the rest of the range.
func RangeProduct(data []uint32, low, high int, modulus uint32) uint32 {
	residue := Identity % modulus
	for _, x := range data[low : high+1] {
		if x == 0 {
			return ZeroSentinel
		}
		residue = MulMod(residue, x, modulus)
	}
	return residue
}

// Combine folds the result table into the final product, in worker order,
// reducing after every step. It returns 0 as soon as a slot holds
// ZeroSentinel, without consulting further slots. Slots that no worker has
// written yet still hold Identity and do not affect the result.
func Combine(results Results, modulus uint32) uint32 {
	residue := Identity % modulus
	for i := 0; i < results.Workers(); i++ {
		x := results.Load(i)
		if x == ZeroSentinel {
			return 0
		}
		residue = MulMod(residue, x, modulus)
	}
	return residue
}

// A Job is the input of a single strategy run.
type Job struct {
	Data       []uint32
	Partitions []Range
	Modulus    uint32
	Results    Results
}

// NewJob partitions data across the given number of workers.
func NewJob(data []uint32, workers int, modulus uint32, results Results) Job {
	return Job{
		Data:       data,
		Partitions: Partition(len(data), workers),
		Modulus:    modulus,
		Results:    results,
	}
}

// Work returns the residue of the given range of the job's data.
func (job Job) Work(r Range) uint32 {
	if r.Len() == 0 {
		return Identity % job.Modulus
	}
	return RangeProduct(job.Data, r.Low, r.High, job.Modulus)
}

// Check panics if the job is not internally consistent.
func (job Job) Check() {
	if job.Modulus == 0 {
		panic("invalid modulus: 0")
	}
	if len(job.Partitions) == 0 {
		panic("invalid number of workers: 0")
	}
	if job.Results == nil || job.Results.Workers() != len(job.Partitions) {
		panic(fmt.Sprintf("result table does not match %v partitions", len(job.Partitions)))
	}
}
