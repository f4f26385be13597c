package process

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/rsario/modprod"
	"github.com/rsario/modprod/shm"
)

// A Mode selects how a worker reports to the coordinator.
type Mode string

const (
	// Join workers store their residue; the coordinator reaps them.
	Join Mode = "join"

	// Poll workers store their residue and then set their done flag.
	Poll Mode = "poll"

	// Signal workers post the completion semaphore on a zero, or when they
	// are the last to finish.
	Signal Mode = "signal"
)

// A Worker describes one worker process: the segments it attaches to and the
// partition it reduces.
type Worker struct {
	Mode    Mode
	Table   string
	Data    string
	Workers int
	Index   int
	Modulus uint32
}

// Flags registers the fields of w as flags on fs.
func (w *Worker) Flags(fs *pflag.FlagSet) {
	fs.StringVar((*string)(&w.Mode), "mode", string(Join), "join, poll, or signal")
	fs.StringVar(&w.Table, "table", "", "segment holding the result table")
	fs.StringVar(&w.Data, "data", "", "segment holding the input")
	fs.IntVar(&w.Workers, "workers", 0, "number of workers")
	fs.IntVar(&w.Index, "index", -1, "index of this worker")
	fs.Uint32Var(&w.Modulus, "modulus", modprod.DefaultModulus, "modulus")
}

// Args returns the command line flags that describe w.
func (w Worker) Args() []string {
	return []string{
		"--mode=" + string(w.Mode),
		"--table=" + w.Table,
		"--data=" + w.Data,
		"--workers=" + strconv.Itoa(w.Workers),
		"--index=" + strconv.Itoa(w.Index),
		"--modulus=" + strconv.FormatUint(uint64(w.Modulus), 10),
	}
}

func (w Worker) check() error {
	switch w.Mode {
	case Join, Poll, Signal:
	default:
		return fmt.Errorf("invalid mode: %q", w.Mode)
	}
	if w.Workers < 1 {
		return fmt.Errorf("invalid number of workers: %v", w.Workers)
	}
	if w.Index < 0 || w.Index >= w.Workers {
		return fmt.Errorf("invalid worker index: %v", w.Index)
	}
	if w.Modulus == 0 {
		return fmt.Errorf("invalid modulus: 0")
	}
	return nil
}

// Run attaches to the segments of w and reduces its partition.
func (w Worker) Run(ctx context.Context) error {
	if err := w.check(); err != nil {
		return err
	}
	t, err := shm.OpenTable(w.Table, w.Workers)
	if err != nil {
		return err
	}
	defer t.Close()
	data, seg, err := shm.OpenData(w.Data)
	if err != nil {
		return err
	}
	defer seg.Close()
	job := modprod.NewJob(data, w.Workers, w.Modulus, t.Table)
	return Work(ctx, t, job, w.Mode, w.Index)
}

/*
Work reduces the partition of the given worker and reports the residue to t
the way mode requires. job.Results must be t.Table.

In Signal mode a worker that meets a zero stores modprod.ZeroSentinel and
posts Completed right away. Any other worker stores its residue, takes Guard,
increments the finished counter, posts Completed if it was the last one, and
releases Guard.
*/
func Work(ctx context.Context, t *shm.SharedTable, job modprod.Job, mode Mode, worker int) error {
	residue := job.Work(job.Partitions[worker])
	switch mode {
	case Join, Poll:
		job.Results.Store(worker, residue)
		job.Results.MarkDone(worker)
	case Signal:
		job.Results.Store(worker, residue)
		if residue == modprod.ZeroSentinel {
			t.Completed.Post()
			return nil
		}
		if err := t.Guard.Wait(ctx); err != nil {
			return err
		}
		if job.Results.Finish() == len(job.Partitions) {
			t.Completed.Post()
		}
		t.Guard.Post()
	default:
		return fmt.Errorf("invalid mode: %q", mode)
	}
	return nil
}
