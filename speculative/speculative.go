/*
Package speculative provides Signal, a strategy for computing the modular
product of a job in parallel that lets the coordinator proceed as soon as
the final result is known.

The coordinator blocks on a single completion semaphore. The semaphore is
released either by the last worker to finish its partition without meeting
a zero, or by any worker that meets a zero, because the product is then known
to be zero regardless of what the other workers compute. A shared finished
counter, guarded by a binary semaphore, determines which worker is last.

When the coordinator wakes because of a zero, other workers may still be
running. Signal does not wait for them: the combiner is safe to run next to
them, since it only reads slots atomically and slots that have not been
written yet still hold the identity. To free up compute resources, and before
resetting the result table for another run, callers invoke the release
function returned by Signal, which cancels the stragglers through a context
and waits for them to terminate.
*/
package speculative

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/internal"
)

// CancelCheckInterval is the number of elements a worker reduces between two
// checks for cancellation.
const CancelCheckInterval = 1 << 16

/*
Signal computes the modular product of job with one goroutine per partition
and returns as soon as the completion semaphore is released.

A worker that finishes its partition without meeting a zero stores its
residue, acquires the guard, increments the finished counter of job.Results,
releases the completion semaphore if the counter has reached the number of
workers, and releases the guard. A worker that meets a zero stores
modprod.ZeroSentinel and releases the completion semaphore immediately,
bypassing the counter.

The returned release function cancels the workers that may still be running
and waits until all of them have terminated. It must be called before
job.Results is reset.

Signal returns a non-nil error only if ctx is done before the completion
semaphore is released; release is valid in that case too.

If one or more workers panic, the corresponding goroutines recover the
panics and release the completion semaphore. Signal panics with the
left-most recovered panic value if it is known when the coordinator wakes;
otherwise release panics with it.
*/
func Signal(ctx context.Context, job modprod.Job) (residue uint32, release func(), err error) {
	job.Check()
	workers := len(job.Partitions)

	// At most one release per worker: either for a zero, for a panic, or the
	// single release by the last finisher, which only happens if no worker
	// met a zero or panicked.
	completed := semaphore.NewWeighted(int64(workers))
	completed.TryAcquire(int64(workers))
	guard := semaphore.NewWeighted(1)

	ctx, cancel := context.WithCancel(ctx)
	panics := internal.NewPanics(workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for _, r := range job.Partitions {
		go func() {
			defer wg.Done()
			defer func() {
				if panics.Recover(r.Worker, recover()) {
					completed.Release(1)
				}
			}()
			x, ok := work(ctx, job, r)
			switch {
			case !ok:
				return
			case x == modprod.ZeroSentinel:
				job.Results.Store(r.Worker, modprod.ZeroSentinel)
				completed.Release(1)
			default:
				job.Results.Store(r.Worker, x)
				_ = guard.Acquire(context.Background(), 1)
				if job.Results.Finish() == workers {
					completed.Release(1)
				}
				guard.Release(1)
			}
		}()
	}

	release = func() {
		cancel()
		wg.Wait()
		panics.Rethrow()
	}

	if err = completed.Acquire(ctx, 1); err != nil {
		return 0, release, err
	}
	if p := panics.First(); p != nil {
		cancel()
		wg.Wait()
		panic(p)
	}
	return modprod.Combine(job.Results, job.Modulus), release, nil
}

// work reduces r in steps of CancelCheckInterval elements. It reports false
// if ctx was done before the residue was known.
func work(ctx context.Context, job modprod.Job, r modprod.Range) (uint32, bool) {
	residue := modprod.Identity % job.Modulus
	for low := r.Low; low <= r.High; low += CancelCheckInterval {
		select {
		case <-ctx.Done():
			return 0, false
		default:
		}
		high := min(low+CancelCheckInterval-1, r.High)
		x := modprod.RangeProduct(job.Data, low, high, job.Modulus)
		if x == modprod.ZeroSentinel {
			return modprod.ZeroSentinel, true
		}
		residue = modprod.MulMod(residue, x, job.Modulus)
	}
	return residue, true
}

// Strategy returns Signal as a modprod.Strategy.
func Strategy() modprod.Strategy {
	return Signal
}
