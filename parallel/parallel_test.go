package parallel_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/dataset"
	"github.com/rsario/modprod/parallel"
	"github.com/rsario/modprod/sequential"
	"github.com/rsario/modprod/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ExampleJoin() {
	data := []uint32{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}
	job := modprod.NewJob(data, 4, modprod.DefaultModulus, table.New(4))
	fmt.Println(parallel.Join(job) == sequential.Product(data, modprod.DefaultModulus))

	data[5] = 0
	job.Results.(*table.Table).Reset()
	fmt.Println(parallel.Join(job))

	// Output:
	// true
	// 0
}

type strategy struct {
	name string
	run  func(modprod.Job) uint32
}

var strategies = []strategy{
	{"Join", parallel.Join},
	{"Poll", parallel.Poll},
}

func TestStrategies_MatchSequential(t *testing.T) {
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			for _, size := range []int{1, 12, 1000, 10007} {
				data := dataset.Generate(size, dataset.NoZero, dataset.Options{})
				want := sequential.Product(data, modprod.DefaultModulus)
				for workers := 1; workers <= 16; workers++ {
					tbl := table.New(workers)
					job := modprod.NewJob(data, workers, modprod.DefaultModulus, tbl)
					require.Equal(t, want, s.run(job), "size=%d workers=%d", size, workers)
				}
			}
		})
	}
}

func TestStrategies_ZeroAnywhere(t *testing.T) {
	const size = 97
	for _, s := range strategies {
		t.Run(s.name, func(t *testing.T) {
			for zero := 0; zero < size; zero += 8 {
				data := dataset.Generate(size, zero, dataset.Options{})
				for _, workers := range []int{1, 3, 4, 16} {
					tbl := table.New(workers)
					job := modprod.NewJob(data, workers, modprod.DefaultModulus, tbl)
					require.Zero(t, s.run(job), "zero=%d workers=%d", zero, workers)

					// the worker owning the zero reports the sentinel
					for _, r := range job.Partitions {
						if r.Low <= zero && zero <= r.High {
							assert.Equal(t, modprod.ZeroSentinel, tbl.Load(r.Worker))
						}
					}
				}
			}
		})
	}
}

func TestStrategies_ResetIdempotent(t *testing.T) {
	data := dataset.Generate(12, dataset.NoZero, dataset.Options{})
	for _, s := range strategies {
		tbl := table.New(4)
		job := modprod.NewJob(data, 4, modprod.DefaultModulus, tbl)
		first := s.run(job)
		tbl.Reset()
		assert.Equal(t, first, s.run(job), s.name)
	}
}

func TestPoll_SetsEveryDoneFlag(t *testing.T) {
	data := dataset.Generate(100, 40, dataset.Options{})
	tbl := table.New(5)
	parallel.Poll(modprod.NewJob(data, 5, modprod.DefaultModulus, tbl))
	assert.True(t, tbl.AllDone())
}

func TestStrategies_RethrowWorkerPanic(t *testing.T) {
	data := dataset.Generate(8, dataset.NoZero, dataset.Options{})
	for _, s := range strategies {
		job := modprod.Job{
			Data: data,
			Partitions: []modprod.Range{
				{Worker: 0, Low: 0, High: 3},
				{Worker: 1, Low: 4, High: 20},
			},
			Modulus: modprod.DefaultModulus,
			Results: table.New(2),
		}
		assert.Panics(t, func() { s.run(job) }, s.name)
	}
}

// panickingResults panics in Store for every worker whose slot is marked.
type panickingResults struct {
	*table.Table
	marked map[int]bool
}

func (r panickingResults) Store(worker int, residue uint32) {
	if r.marked[worker] {
		panic(fmt.Sprintf("store %d", worker))
	}
	r.Table.Store(worker, residue)
}

func TestStrategies_RethrowLeftmostPanic(t *testing.T) {
	data := dataset.Generate(1000, dataset.NoZero, dataset.Options{})
	for _, s := range strategies {
		results := panickingResults{Table: table.New(8), marked: map[int]bool{2: true, 5: true}}
		job := modprod.NewJob(data, 8, modprod.DefaultModulus, results)
		var p interface{}
		func() {
			defer func() { p = recover() }()
			s.run(job)
		}()
		require.NotNil(t, p, s.name)
		assert.True(t, strings.HasPrefix(fmt.Sprint(p), "store 2\n"), "%s: %v", s.name, p)
	}
}

func TestJoin_NoPanicNoRethrow(t *testing.T) {
	data := dataset.Generate(100, dataset.NoZero, dataset.Options{})
	results := panickingResults{Table: table.New(4)}
	job := modprod.NewJob(data, 4, modprod.DefaultModulus, results)
	assert.NotPanics(t, func() { parallel.Join(job) })
}
