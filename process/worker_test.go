package process

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/dataset"
	"github.com/rsario/modprod/sequential"
	"github.com/rsario/modprod/shm"
)

func TestWorker_FlagsParseArgs(t *testing.T) {
	w := Worker{Mode: Signal, Table: "t", Data: "d", Workers: 7, Index: 3, Modulus: 101}
	var parsed Worker
	fs := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	parsed.Flags(fs)
	require.NoError(t, fs.Parse(w.Args()))
	assert.Equal(t, w, parsed)
}

func TestWorker_RunInvalid(t *testing.T) {
	valid := Worker{Mode: Join, Table: "t", Data: "d", Workers: 2, Index: 0, Modulus: 7}
	for _, w := range []Worker{
		{Mode: "spin", Workers: 2, Index: 0, Modulus: 7},
		{Mode: Join, Workers: 0, Index: 0, Modulus: 7},
		{Mode: Join, Workers: 2, Index: 2, Modulus: 7},
		{Mode: Join, Workers: 2, Index: -1, Modulus: 7},
		{Mode: Join, Workers: 2, Index: 0, Modulus: 0},
	} {
		assert.Error(t, w.check(), "%+v", w)
	}
	assert.NoError(t, valid.check())

	// valid, but there is no such segment
	valid.Table = fmt.Sprintf("modprod-missing-%d", time.Now().UnixNano())
	assert.Error(t, valid.Run(context.Background()))
}

func newSharedTable(t *testing.T, workers int) *shm.SharedTable {
	t.Helper()
	tbl, err := shm.CreateTable(fmt.Sprintf("modprod-work-%d", time.Now().UnixNano()), workers)
	require.NoError(t, err)
	t.Cleanup(func() {
		tbl.Close()
		tbl.Unlink()
	})
	return tbl
}

func TestWork_SignalPostsOnceWhenLastFinishes(t *testing.T) {
	const workers = 4
	data := dataset.Generate(1000, dataset.NoZero, dataset.Options{})
	tbl := newSharedTable(t, workers)
	job := modprod.NewJob(data, workers, modprod.DefaultModulus, tbl.Table)

	for i := 0; i < workers; i++ {
		assert.Zero(t, tbl.Completed.Value(), "worker %d", i)
		require.NoError(t, Work(context.Background(), tbl, job, Signal, i))
	}
	assert.Equal(t, 1, tbl.Completed.Value())
	assert.Equal(t, 1, tbl.Guard.Value())
	assert.Equal(t, workers, tbl.Finished())
	assert.Equal(t, sequential.Product(data, modprod.DefaultModulus), modprod.Combine(tbl, job.Modulus))
}

func TestWork_SignalPostsOnZero(t *testing.T) {
	const workers = 4
	data := dataset.Generate(1000, 900, dataset.Options{})
	tbl := newSharedTable(t, workers)
	job := modprod.NewJob(data, workers, modprod.DefaultModulus, tbl.Table)

	require.NoError(t, Work(context.Background(), tbl, job, Signal, 3))
	assert.Equal(t, 1, tbl.Completed.Value())
	assert.Zero(t, tbl.Finished())
	assert.Equal(t, modprod.ZeroSentinel, tbl.Load(3))
	assert.Zero(t, modprod.Combine(tbl, job.Modulus))
}

func TestWork_PollSetsDoneFlag(t *testing.T) {
	data := dataset.Generate(100, dataset.NoZero, dataset.Options{})
	tbl := newSharedTable(t, 2)
	job := modprod.NewJob(data, 2, modprod.DefaultModulus, tbl.Table)

	require.NoError(t, Work(context.Background(), tbl, job, Poll, 1))
	assert.True(t, tbl.Done(1))
	assert.False(t, tbl.Done(0))
	assert.Error(t, Work(context.Background(), tbl, job, Mode("spin"), 0))
}
