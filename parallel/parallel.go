// Package parallel provides the strategies that compute the modular product
// of a job in parallel and wait for every worker before combining.
//
// Both strategies spawn one goroutine per partition. Each worker computes the
// residue of its range, stopping early when it meets a zero element, and
// stores the residue (or modprod.ZeroSentinel) in its own slot of the job's
// result table. They differ only in how the coordinator learns that the
// workers are done.
package parallel

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/internal"
)

var errWorkerPanicked = errors.New("worker panicked")

// Join computes the modular product of job with one goroutine per partition
// and blocks until all of them have terminated, then combines the result
// table.
//
// The coordinator never polls: it waits on a join primitive, whose return
// guarantees that every store a worker made is visible.
//
// If one or more workers panic, the corresponding goroutines recover the
// panics, and Join eventually panics with the left-most recovered panic
// value.
func Join(job modprod.Job) uint32 {
	job.Check()
	panics := internal.NewPanics(len(job.Partitions))
	var g errgroup.Group
	for _, r := range job.Partitions {
		g.Go(func() (err error) {
			defer func() {
				if panics.Recover(r.Worker, recover()) {
					err = errWorkerPanicked
				}
			}()
			job.Results.Store(r.Worker, job.Work(r))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panics.Rethrow()
	}
	return modprod.Combine(job.Results, job.Modulus)
}

// Poll computes the modular product of job with one goroutine per partition.
// Each worker sets its done flag as its last action, and the coordinator
// sweeps the done flags in a tight loop, without blocking or sleeping, until
// it observes all of them set in a single sweep. It then combines the result
// table.
//
// The job's Results must make a done flag visible only together with the
// residue stored before it, which table.Table does by using atomic
// operations for both.
//
// A worker that never sets its done flag keeps Poll spinning forever.
//
// If one or more workers panic, the corresponding goroutines recover the
// panics and still set their done flags, and Poll eventually panics with the
// left-most recovered panic value.
func Poll(job modprod.Job) uint32 {
	job.Check()
	panics := internal.NewPanics(len(job.Partitions))
	for _, r := range job.Partitions {
		go func() {
			defer func() {
				panics.Recover(r.Worker, recover())
				job.Results.MarkDone(r.Worker)
			}()
			job.Results.Store(r.Worker, job.Work(r))
		}()
	}
	for !allDone(job.Results) {
	}
	panics.Rethrow()
	return modprod.Combine(job.Results, job.Modulus)
}

func allDone(results modprod.Results) bool {
	for i := 0; i < results.Workers(); i++ {
		if !results.Done(i) {
			return false
		}
	}
	return true
}

// JoinStrategy returns Join as a modprod.Strategy.
func JoinStrategy() modprod.Strategy {
	return func(_ context.Context, job modprod.Job) (uint32, func(), error) {
		return Join(job), nil, nil
	}
}

// PollStrategy returns Poll as a modprod.Strategy.
func PollStrategy() modprod.Strategy {
	return func(_ context.Context, job modprod.Job) (uint32, func(), error) {
		return Poll(job), nil, nil
	}
}
