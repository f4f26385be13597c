// Package runner runs every strategy over the same input and partition
// table, resetting the shared result table between runs, and reports the
// elapsed time and residue of each.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/parallel"
	"github.com/rsario/modprod/process"
	"github.com/rsario/modprod/sequential"
	"github.com/rsario/modprod/speculative"
	"github.com/rsario/modprod/table"
	"github.com/rsario/modprod/timing"
)

// ErrMismatch is returned by Verify when strategies disagree.
var ErrMismatch = errors.New("strategies disagree")

// A Strategy is a named modprod.Strategy.
type Strategy struct {
	Name  string
	Label string
	Run   modprod.Strategy
}

// Strategies returns the sequential baseline followed by the join, poll, and
// signal strategies.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "sequential", Label: "Sequential multiplication", Run: sequential.Strategy()},
		{Name: "join", Label: "Threaded multiplication with parent waiting for all children", Run: parallel.JoinStrategy()},
		{Name: "poll", Label: "Threaded multiplication with parent continually checking on children", Run: parallel.PollStrategy()},
		{Name: "signal", Label: "Threaded multiplication with parent waiting on a semaphore", Run: speculative.Strategy()},
	}
}

// ProcessStrategies returns the join, poll, and signal strategies of pool,
// whose workers run as separate processes.
func ProcessStrategies(pool *process.Pool) []Strategy {
	return []Strategy{
		{Name: "process-join", Label: "Process-based multiplication with parent waiting for all children", Run: pool.Join},
		{Name: "process-poll", Label: "Process-based multiplication with parent continually checking on children", Run: pool.Poll},
		{Name: "process-signal", Label: "Process-based multiplication with parent waiting on a semaphore", Run: pool.Signal},
	}
}

// A Report is the outcome of running one strategy one or more times.
type Report struct {
	Strategy string
	Label    string
	Residue  uint32
	Elapsed  []time.Duration
}

// Summary summarizes the elapsed times of the report.
func (r Report) Summary() timing.Summary {
	return timing.Summarize(r.Elapsed)
}

func (r Report) String() string {
	if len(r.Elapsed) == 1 {
		return fmt.Sprintf("%s completed in %d ms. Product = %d", r.Label, r.Elapsed[0].Milliseconds(), r.Residue)
	}
	s := r.Summary()
	return fmt.Sprintf("%s completed in %.0f ms. Product = %d (%v)", r.Label, s.Mean, r.Residue, s)
}

// A Runner runs strategies over one job.
type Runner struct {
	job    modprod.Job
	table  *table.Table
	logger *zap.Logger
	repeat int
}

// An Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger of the runner.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithRepeat makes the runner run every strategy n times.
func WithRepeat(n int) Option {
	return func(r *Runner) { r.repeat = n }
}

// WithTable makes the runner use t as the result table, for instance one that
// lives in a shared memory segment. t must have one split per worker.
func WithTable(t *table.Table) Option {
	return func(r *Runner) { r.table = t }
}

// New returns a runner for data split across the given number of workers.
func New(data []uint32, workers int, modulus uint32, opts ...Option) *Runner {
	r := &Runner{repeat: 1}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.repeat < 1 {
		r.repeat = 1
	}
	if r.table == nil {
		r.table = table.New(workers)
	}
	r.job = modprod.NewJob(data, workers, modulus, r.table)
	r.job.Check()
	return r
}

// Job returns the job the runner runs.
func (r *Runner) Job() modprod.Job {
	return r.job
}

// Run runs s the configured number of times. The result table is reset
// before every run, after any workers of the previous run have terminated.
// It returns an error if ctx is done, or if two runs disagree.
func (r *Runner) Run(ctx context.Context, s Strategy) (Report, error) {
	report := Report{Strategy: s.Name, Label: s.Label}
	log := r.logger.With(zap.String("strategy", s.Name), zap.Int("workers", len(r.job.Partitions)))
	for i := 0; i < r.repeat; i++ {
		r.table.Reset()
		log.Debug("run started", zap.Int("run", i))
		sw := timing.Start()
		residue, release, err := s.Run(ctx, r.job)
		elapsed := sw.Elapsed()
		if release != nil {
			release()
			log.Debug("stragglers drained", zap.Int("finished", r.table.Finished()))
		}
		if err != nil {
			return report, fmt.Errorf("%s: %w", s.Name, err)
		}
		log.Debug("run finished",
			zap.Int("run", i),
			zap.Uint32("residue", residue),
			zap.Duration("elapsed", elapsed))
		if i > 0 && residue != report.Residue {
			return report, fmt.Errorf("%w: %s run %d returned %d, earlier runs %d",
				ErrMismatch, s.Name, i, residue, report.Residue)
		}
		report.Residue = residue
		report.Elapsed = append(report.Elapsed, elapsed)
	}
	return report, nil
}

// RunAll runs the given strategies in order, or Strategies() if none are
// given.
func (r *Runner) RunAll(ctx context.Context, strategies ...Strategy) ([]Report, error) {
	if len(strategies) == 0 {
		strategies = Strategies()
	}
	reports := make([]Report, 0, len(strategies))
	for _, s := range strategies {
		report, err := r.Run(ctx, s)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Verify returns an error wrapping ErrMismatch if any report disagrees with
// the first one.
func Verify(reports []Report) error {
	for _, report := range reports[min(1, len(reports)):] {
		if report.Residue != reports[0].Residue {
			return fmt.Errorf("%w: %s returned %d, %s returned %d", ErrMismatch,
				report.Strategy, report.Residue, reports[0].Strategy, reports[0].Residue)
		}
	}
	return nil
}
