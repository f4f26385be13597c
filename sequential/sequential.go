// Package sequential provides the single-threaded modular product that serves
// as the correctness oracle for the strategies in the parallel and
// speculative packages, and a sequential execution of the per-worker bodies
// of a job. The latter is useful for testing and debugging.
//
// It is not recommended to use Run for any other purpose, because it only
// adds bookkeeping on top of Product.
package sequential

import (
	"context"

	"github.com/rsario/modprod"
)

// Product returns the product of all elements of data modulo modulus,
// reducing after every multiplication. It returns 0 as soon as it meets a
// zero element, without scanning the remainder.
func Product(data []uint32, modulus uint32) uint32 {
	if modulus == 0 {
		panic("invalid modulus: 0")
	}
	return modprod.RangeProduct(data, 0, len(data)-1, modulus)
}

// Run executes the worker bodies of job one after another, in worker order,
// storing each residue and setting each done flag in job.Results, and then
// combines the results.
func Run(job modprod.Job) uint32 {
	job.Check()
	for _, r := range job.Partitions {
		job.Results.Store(r.Worker, job.Work(r))
		job.Results.MarkDone(r.Worker)
		job.Results.Finish()
	}
	return modprod.Combine(job.Results, job.Modulus)
}

// Strategy returns Product as a modprod.Strategy; it ignores the partitions
// and result table of the job.
func Strategy() modprod.Strategy {
	return func(_ context.Context, job modprod.Job) (uint32, func(), error) {
		return Product(job.Data, job.Modulus), nil, nil
	}
}
