package process_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/dataset"
	"github.com/rsario/modprod/process"
	"github.com/rsario/modprod/sequential"
	"github.com/rsario/modprod/shm"
)

// The test binary doubles as the worker process.
const helperEnv = "MODPROD_TEST_WORKER"

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "1":
		os.Exit(helperWorker(os.Args[1:]))
	case "fail":
		os.Exit(3)
	}
	goleak.VerifyTestMain(m)
}

func helperWorker(args []string) int {
	var w process.Worker
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	w.Flags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := w.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

type fixture struct {
	table *shm.SharedTable
	pool  *process.Pool
	job   modprod.Job
}

func newFixture(t *testing.T, data []uint32, workers int, helper string) *fixture {
	t.Helper()
	name := fmt.Sprintf("modprod-process-%d", time.Now().UnixNano())
	tbl, err := shm.CreateTable(name+"-table", workers)
	require.NoError(t, err)
	t.Cleanup(func() {
		tbl.Close()
		tbl.Unlink()
	})
	words, seg, err := shm.CreateData(name+"-data", data)
	require.NoError(t, err)
	t.Cleanup(func() {
		seg.Close()
		seg.Unlink()
	})
	pool := process.NewPool(tbl, name+"-data", os.Args[0],
		process.WithEnv(append(os.Environ(), helperEnv+"="+helper)),
		process.WithStderr(os.Stderr))
	return &fixture{
		table: tbl,
		pool:  pool,
		job:   modprod.NewJob(words, workers, modprod.DefaultModulus, tbl.Table),
	}
}

func (f *fixture) strategies() map[string]modprod.Strategy {
	return map[string]modprod.Strategy{
		"join":   f.pool.Join,
		"poll":   f.pool.Poll,
		"signal": f.pool.Signal,
	}
}

func run(t *testing.T, f *fixture, s modprod.Strategy) (uint32, error) {
	t.Helper()
	f.table.Reset()
	residue, release, err := s(context.Background(), f.job)
	if release != nil {
		release()
	}
	return residue, err
}

func TestPool_MatchesSequential(t *testing.T) {
	for _, size := range []int{1, 1000, 100003} {
		data := dataset.Generate(size, dataset.NoZero, dataset.Options{})
		want := sequential.Product(data, modprod.DefaultModulus)
		for _, workers := range []int{1, 3, 8} {
			f := newFixture(t, data, workers, "1")
			for name, s := range f.strategies() {
				residue, err := run(t, f, s)
				require.NoError(t, err, "%s size=%d workers=%d", name, size, workers)
				assert.Equal(t, want, residue, "%s size=%d workers=%d", name, size, workers)
			}
		}
	}
}

func TestPool_ZeroAnywhere(t *testing.T) {
	const size, workers = 1000, 4
	for _, zero := range []int{0, 500, size - 1} {
		data := dataset.Generate(size, zero, dataset.Options{})
		f := newFixture(t, data, workers, "1")
		owner := zero / (size / workers)
		for name, s := range f.strategies() {
			residue, err := run(t, f, s)
			require.NoError(t, err, name)
			assert.Zero(t, residue, "%s zero=%d", name, zero)
			assert.Equal(t, modprod.ZeroSentinel, f.table.Load(owner), "%s zero=%d", name, zero)
		}
	}
}

func TestPool_Signal_FinishedCounter(t *testing.T) {
	data := dataset.Generate(10000, dataset.NoZero, dataset.Options{})
	f := newFixture(t, data, 5, "1")
	_, err := run(t, f, f.pool.Signal)
	require.NoError(t, err)
	assert.Equal(t, 5, f.table.Finished())
	assert.Equal(t, 1, f.table.Guard.Value())
}

func TestPool_WorkerFails(t *testing.T) {
	data := dataset.Generate(100, dataset.NoZero, dataset.Options{})
	f := newFixture(t, data, 3, "fail")
	for name, s := range f.strategies() {
		_, err := run(t, f, s)
		assert.ErrorIs(t, err, process.ErrWorkerFailed, name)
	}
}

func TestPool_ContextDone(t *testing.T) {
	data := dataset.Generate(100, dataset.NoZero, dataset.Options{})
	f := newFixture(t, data, 3, "1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, s := range f.strategies() {
		_, release, err := s(ctx, f.job)
		assert.Nil(t, release, name)
		assert.ErrorIs(t, err, context.Canceled, name)
	}
}

func TestPool_ForeignTable(t *testing.T) {
	data := dataset.Generate(100, dataset.NoZero, dataset.Options{})
	f := newFixture(t, data, 2, "1")
	other := newFixture(t, data, 2, "1")
	assert.Panics(t, func() { f.pool.Join(context.Background(), other.job) })
}
