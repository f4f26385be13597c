// Package modprod computes the modular product of a large dataset by splitting
// it across a fixed number of workers, and does so in several ways so that the
// coordination disciplines can be compared against each other. Every variant
// reduces modulo a fixed modulus after each multiplication, so the result is a
// residue rather than the true product, and every variant short-circuits to
// zero as soon as a zero element is known to exist.
//
// The root package provides the pieces shared by all variants: partitioning
// the dataset into contiguous worker ranges, the per-range reduction kernel,
// the combiner that folds per-worker results, and the Job type that carries
// the dataset, partitions, and shared result table to a strategy.
//
// Modprod provides the following subpackages:
//
// modprod/sequential provides the single-threaded reduction that serves as the
// correctness oracle, and a sequential run of the per-worker bodies for
// debugging.
//
// modprod/parallel provides the strategies that wait for every worker: Join
// blocks on a join primitive, Poll spins on per-worker done flags.
//
// modprod/speculative provides Signal, which wakes the coordinator through a
// semaphore either when all workers are done or as soon as one of them finds a
// zero, without waiting for the remaining workers.
//
// modprod/table provides the worker result table, in private memory or over a
// shared memory segment.
//
// modprod/runner runs all strategies over one input and reports their timings.
//
// modprod/shm provides shared memory segments, the result table backing, and
// the bounded buffer used by the producer and consumer commands.
package modprod
