package speculative_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/dataset"
	"github.com/rsario/modprod/sequential"
	"github.com/rsario/modprod/speculative"
	"github.com/rsario/modprod/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ExampleSignal() {
	data := dataset.Generate(12, 5, dataset.Options{})
	job := modprod.NewJob(data, 4, modprod.DefaultModulus, table.New(4))
	residue, release, err := speculative.Signal(context.Background(), job)
	release()
	fmt.Println(residue, err)

	// Output:
	// 0 <nil>
}

func TestSignal_MatchesSequential(t *testing.T) {
	for _, size := range []int{1, 12, 1000, 3*speculative.CancelCheckInterval + 17} {
		data := dataset.Generate(size, dataset.NoZero, dataset.Options{})
		want := sequential.Product(data, modprod.DefaultModulus)
		for workers := 1; workers <= 16; workers++ {
			tbl := table.New(workers)
			job := modprod.NewJob(data, workers, modprod.DefaultModulus, tbl)
			residue, release, err := speculative.Signal(context.Background(), job)
			require.NoError(t, err)
			release()
			require.Equal(t, want, residue, "size=%d workers=%d", size, workers)
			require.Equal(t, workers, tbl.Finished())
		}
	}
}

func TestSignal_ZeroAnywhere(t *testing.T) {
	const size = 97
	for zero := 0; zero < size; zero += 6 {
		data := dataset.Generate(size, zero, dataset.Options{})
		for _, workers := range []int{1, 2, 4, 16} {
			job := modprod.NewJob(data, workers, modprod.DefaultModulus, table.New(workers))
			residue, release, err := speculative.Signal(context.Background(), job)
			require.NoError(t, err)
			release()
			require.Zero(t, residue, "zero=%d workers=%d", zero, workers)
		}
	}
}

func TestSignal_ResetBetweenRuns(t *testing.T) {
	data := dataset.Generate(1000, dataset.NoZero, dataset.Options{})
	tbl := table.New(4)
	job := modprod.NewJob(data, 4, modprod.DefaultModulus, tbl)

	first, release, err := speculative.Signal(context.Background(), job)
	require.NoError(t, err)
	release()
	tbl.Reset()
	second, release, err := speculative.Signal(context.Background(), job)
	require.NoError(t, err)
	release()
	assert.Equal(t, first, second)
}

// blockingResults holds back the stores of selected workers until unblock
// is closed.
type blockingResults struct {
	*table.Table
	blocked map[int]bool
	unblock chan struct{}
}

func (b *blockingResults) Store(worker int, residue uint32) {
	if b.blocked[worker] {
		<-b.unblock
	}
	b.Table.Store(worker, residue)
}

func TestSignal_ProceedsWithWorkersInFlight(t *testing.T) {
	data := dataset.Generate(40, 3, dataset.Options{})
	results := &blockingResults{
		Table:   table.New(4),
		blocked: map[int]bool{1: true, 2: true, 3: true},
		unblock: make(chan struct{}),
	}
	job := modprod.NewJob(data, 4, modprod.DefaultModulus, results)

	residue, release, err := speculative.Signal(context.Background(), job)
	require.NoError(t, err)
	assert.Zero(t, residue)

	// the stragglers have not written anything yet
	assert.Equal(t, modprod.Identity, results.Load(1))
	assert.Zero(t, results.Finished())

	close(results.unblock)
	release()
}

func TestSignal_ContextDone(t *testing.T) {
	data := dataset.Generate(40, dataset.NoZero, dataset.Options{})
	results := &blockingResults{
		Table:   table.New(2),
		blocked: map[int]bool{0: true, 1: true},
		unblock: make(chan struct{}),
	}
	job := modprod.NewJob(data, 2, modprod.DefaultModulus, results)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, release, err := speculative.Signal(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)

	close(results.unblock)
	release()
}

func TestSignal_RethrowWorkerPanic(t *testing.T) {
	data := dataset.Generate(8, dataset.NoZero, dataset.Options{})
	job := modprod.Job{
		Data: data,
		Partitions: []modprod.Range{
			{Worker: 0, Low: 0, High: 3},
			{Worker: 1, Low: 4, High: 20},
		},
		Modulus: modprod.DefaultModulus,
		Results: table.New(2),
	}
	assert.Panics(t, func() {
		_, release, _ := speculative.Signal(context.Background(), job)
		release()
	})
}
