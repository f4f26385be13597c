package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rsario/modprod/config"
	"github.com/rsario/modprod/dataset"
	"github.com/rsario/modprod/internal/cli"
	"github.com/rsario/modprod/process"
	"github.com/rsario/modprod/runner"
	"github.com/rsario/modprod/shm"
)

type options struct {
	verbose    bool
	configPath string
	repeat     int
	shared     bool
	processes  bool
	seed       uint64

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "findprod <arraySize> <workerCount> <zeroIndex>",
		Short: "Compute a modular product sequentially and with three parallel strategies",
		Long: `findprod generates arraySize pseudo-random values, optionally forcing the
value at zeroIndex to zero (-1 injects no zero), and computes their product
modulo a fixed modulus four times:

  1. sequentially,
  2. with workerCount goroutines, joining all of them,
  3. with workerCount goroutines, busy-waiting on their done flags,
  4. with workerCount goroutines, waiting on a completion semaphore that a
     worker meeting a zero releases immediately.

One line per strategy reports the elapsed milliseconds and the residue.

With --processes the three parallel strategies run one worker process per
partition instead of goroutines, sharing the input, the result table and
the semaphores through shared memory segments.`,
		Args:         cli.ExactArgs(3, config.ErrInvalidArgCount),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cli.NewLogger(opts.verbose)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFindProd(cmd, args, opts)
		},
	}
	// flags precede the positional arguments, so a zero index of -1 parses
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath, "configuration file")
	cmd.Flags().IntVar(&opts.repeat, "repeat", 1, "run every strategy this many times")
	cmd.Flags().BoolVar(&opts.shared, "shared", false, "keep the result table in a shared memory segment")
	cmd.Flags().BoolVar(&opts.processes, "processes", false, "run the parallel strategies with one worker process per partition")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed of the input generator (default from config)")
	cmd.AddCommand(newWorkerCmd())
	return cmd
}

// newWorkerCmd returns the command that --processes runs once per partition.
func newWorkerCmd() *cobra.Command {
	var w process.Worker
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Reduce one partition of a shared input in a worker process",
		Hidden:       true,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return w.Run(cmd.Context())
		},
	}
	w.Flags(cmd.Flags())
	return cmd
}

func runFindProd(cmd *cobra.Command, args []string, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("repeat") {
		cfg.Repeat = opts.repeat
	}
	if flags.Changed("shared") {
		cfg.SharedTable = opts.shared
	}
	if flags.Changed("processes") {
		cfg.Processes = opts.processes
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	values, err := cli.Ints(args, config.ErrInvalidArraySize, config.ErrInvalidWorkerCount, config.ErrInvalidZeroIndex)
	if err != nil {
		return err
	}
	arraySize, workers, zeroIndex := values[0], values[1], values[2]
	if err := cfg.ValidateArgs(arraySize, workers, zeroIndex); err != nil {
		return err
	}

	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	data := dataset.Generate(arraySize, zeroIndex,
		dataset.Options{}.WithSeed(cfg.Seed).WithMaxValue(cfg.MaxValue))
	logger.Debug("input generated",
		zap.Int("size", arraySize),
		zap.Int("workers", workers),
		zap.Int("zero_index", zeroIndex),
		zap.Uint64("seed", cfg.Seed))

	runnerOpts := []runner.Option{runner.WithLogger(logger), runner.WithRepeat(cfg.Repeat)}
	strategies := runner.Strategies()
	if cfg.SharedTable || cfg.Processes {
		tbl, err := shm.CreateTable(cfg.SegmentName, workers)
		if err != nil {
			return fmt.Errorf("failed to set up shared result table: %w", err)
		}
		logger.Debug("shared result table created", zap.String("path", tbl.Segment().Path))
		defer func() {
			tbl.Close()
			if err := tbl.Unlink(); err != nil {
				logger.Warn("failed to remove shared result table", zap.Error(err))
			}
		}()
		runnerOpts = append(runnerOpts, runner.WithTable(tbl.Table))

		if cfg.Processes {
			shared, seg, err := shm.CreateData(cfg.DataSegmentName, data)
			if err != nil {
				return fmt.Errorf("failed to set up shared input: %w", err)
			}
			defer func() {
				seg.Close()
				if err := seg.Unlink(); err != nil {
					logger.Warn("failed to remove shared input", zap.Error(err))
				}
			}()
			data = shared
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate worker binary: %w", err)
			}
			pool := process.NewPool(tbl, cfg.DataSegmentName, exe,
				process.WithArgs("worker"),
				process.WithStderr(zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr()))),
				process.WithLogger(logger))
			strategies = append(strategies[:1:1], runner.ProcessStrategies(pool)...)
		}
	}

	r := runner.New(data, workers, cfg.Modulus, runnerOpts...)
	out := cmd.OutOrStdout()
	var reports []runner.Report
	for _, s := range strategies {
		report, err := r.Run(cmd.Context(), s)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, report)
		reports = append(reports, report)
	}
	return runner.Verify(reports)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
