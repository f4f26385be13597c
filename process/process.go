/*
Package process runs the workers of a job as separate operating system
processes instead of goroutines.

The processes share the input and the result table through named shared
memory segments (see package shm). Each worker process is started by
re-executing a binary with the flags of a Worker, attaches to both segments,
reduces its partition and exits. The three strategies mirror the goroutine
based ones: Join reaps every worker process, Poll sweeps the done flags in
the shared table, and Signal waits on the Completed semaphore in the shared
table and kills the processes still running when release is called.
*/
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/shm"
)

// ErrWorkerFailed is returned when a worker process fails.
var ErrWorkerFailed = errors.New("worker process failed")

// A Pool starts worker processes for jobs whose result table is a shared
// table, and whose input is held in a data segment.
type Pool struct {
	table  *shm.SharedTable
	data   string
	path   string
	args   []string
	env    []string
	stderr io.Writer
	logger *zap.Logger
}

// An Option configures a Pool.
type Option func(*Pool)

// WithArgs sets the arguments that precede the worker flags, such as a
// subcommand name.
func WithArgs(args ...string) Option {
	return func(p *Pool) { p.args = args }
}

// WithEnv sets the environment of the worker processes. By default they
// inherit the environment of the current process.
func WithEnv(env []string) Option {
	return func(p *Pool) { p.env = env }
}

// WithStderr sets where the standard error of the worker processes goes.
// Writes to it must be safe for concurrent use.
func WithStderr(w io.Writer) Option {
	return func(p *Pool) { p.stderr = w }
}

// WithLogger sets the logger of the pool.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// NewPool returns a pool that runs the binary at path for every worker. The
// workers attach to t and to the data segment with the given name, which
// must hold the data of every job run on the pool.
func NewPool(t *shm.SharedTable, dataSegment, path string, opts ...Option) *Pool {
	p := &Pool{table: t, data: dataSegment, path: path}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

func (p *Pool) check(job modprod.Job) {
	job.Check()
	if job.Results != modprod.Results(p.table.Table) {
		panic("job does not use the shared table of the pool")
	}
}

// group is the set of worker processes of one run.
type group struct {
	g      errgroup.Group
	cancel context.CancelFunc
	failed chan struct{}
	once   sync.Once
}

// stop kills the processes that are still running and waits for all of them.
// It returns the first failure observed before stop was called.
func (gr *group) stop() error {
	gr.cancel()
	return gr.g.Wait()
}

// wait waits for all processes and returns the first failure.
func (gr *group) wait() error {
	err := gr.g.Wait()
	gr.cancel()
	return err
}

func (p *Pool) start(ctx context.Context, job modprod.Job, mode Mode) (*group, error) {
	ctx, cancel := context.WithCancel(ctx)
	gr := &group{cancel: cancel, failed: make(chan struct{})}
	for i := range job.Partitions {
		w := Worker{
			Mode:    mode,
			Table:   p.table.Name,
			Data:    p.data,
			Workers: len(job.Partitions),
			Index:   i,
			Modulus: job.Modulus,
		}
		cmd := exec.CommandContext(ctx, p.path, append(append([]string{}, p.args...), w.Args()...)...)
		cmd.Env = p.env
		cmd.Stderr = p.stderr
		if err := cmd.Start(); err != nil {
			_ = gr.stop()
			return nil, fmt.Errorf("failed to start worker %d: %w", i, err)
		}
		p.logger.Debug("worker started", zap.Int("worker", i), zap.Int("pid", cmd.Process.Pid))
		gr.g.Go(func() error {
			err := cmd.Wait()
			if err == nil || ctx.Err() != nil {
				// killed by stop, or by the caller's context
				return nil
			}
			gr.once.Do(func() { close(gr.failed) })
			return fmt.Errorf("%w: worker %d: %v", ErrWorkerFailed, i, err)
		})
	}
	return gr, nil
}

// Join starts one worker process per partition of job and waits until all
// of them have exited, then combines the shared table.
func (p *Pool) Join(ctx context.Context, job modprod.Job) (uint32, func(), error) {
	p.check(job)
	procs, err := p.start(ctx, job, Join)
	if err != nil {
		return 0, nil, err
	}
	if err := procs.wait(); err != nil {
		return 0, nil, err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	return modprod.Combine(job.Results, job.Modulus), nil, nil
}

// Poll starts one worker process per partition of job and sweeps the done
// flags of the shared table in a tight loop until all of them are set, then
// combines the shared table. It stops early if a worker process fails or ctx
// is done.
func (p *Pool) Poll(ctx context.Context, job modprod.Job) (uint32, func(), error) {
	p.check(job)
	procs, err := p.start(ctx, job, Poll)
	if err != nil {
		return 0, nil, err
	}
	done := ctx.Done()
	for !p.table.AllDone() {
		select {
		case <-procs.failed:
			return 0, nil, procs.stop()
		case <-done:
			_ = procs.stop()
			return 0, nil, ctx.Err()
		default:
		}
	}
	if err := procs.wait(); err != nil {
		return 0, nil, err
	}
	return modprod.Combine(job.Results, job.Modulus), nil, nil
}

/*
Signal starts one worker process per partition of job and waits on the
Completed semaphore of the shared table, which a worker posts on meeting a
zero, or when it is the last to finish. It then combines the shared table
without waiting for the other workers.

The returned release function kills the worker processes that may still be
running and reaps all of them. It must be called before the shared table is
reset.
*/
func (p *Pool) Signal(ctx context.Context, job modprod.Job) (uint32, func(), error) {
	p.check(job)
	p.table.Guard.Init(1)
	p.table.Completed.Init(0)
	procs, err := p.start(ctx, job, Signal)
	if err != nil {
		return 0, nil, err
	}
	release := func() {
		_ = procs.stop()
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	go func() {
		select {
		case <-procs.failed:
			cancelWait()
		case <-waitCtx.Done():
		}
	}()
	err = p.table.Completed.Wait(waitCtx)
	cancelWait()
	if err != nil {
		select {
		case <-procs.failed:
			return 0, nil, procs.stop()
		default:
		}
		_ = procs.stop()
		return 0, nil, err
	}
	return modprod.Combine(job.Results, job.Modulus), release, nil
}
