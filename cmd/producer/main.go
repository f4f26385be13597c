package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rsario/modprod/config"
	"github.com/rsario/modprod/dataset"
	"github.com/rsario/modprod/internal/cli"
	"github.com/rsario/modprod/shm"
)

// ErrConsumerExited is returned when the launched consumer terminates before
// every item was produced.
var ErrConsumerExited = errors.New("consumer exited before all items were produced")

type options struct {
	verbose    bool
	configPath string
	consumer   string

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "producer <bufSize> <itemCnt> <randSeed>",
		Short: "Write pseudo-random values into a bounded buffer in shared memory",
		Long: `producer creates the shared memory segment, lays out a circular buffer of
bufSize slots in it and writes itemCnt pseudo-random values drawn from
randSeed, busy-waiting whenever the buffer is full. It then waits until a
consumer has read every value.

With --consumer the producer launches the consumer binary itself. Otherwise
a consumer is expected to be started separately against the same segment.`,
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
			return runProducer(cmd, args, opts)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath, "configuration file")
	cmd.Flags().StringVar(&opts.consumer, "consumer", "", "consumer binary to launch")
	return cmd
}

func runProducer(cmd *cobra.Command, args []string, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	values, err := cli.Ints(args, config.ErrInvalidCapacity, config.ErrInvalidItemCount, config.ErrInvalidSeed)
	if err != nil {
		return err
	}
	capacity, items, seed := values[0], values[1], values[2]
	if err := cfg.ValidateBuffer(capacity, items); err != nil {
		return err
	}

	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("segment", cfg.Buffer.SegmentName))

	seg, err := shm.Create(cfg.Buffer.SegmentName, cfg.Buffer.SegmentSize)
	if err != nil {
		return fmt.Errorf("failed to create shared memory block: %w", err)
	}
	defer func() {
		seg.Close()
		// the consumer removes the segment when it finishes
		if err := seg.Unlink(); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove segment", zap.Error(err))
		}
	}()
	buf, err := shm.InitBuffer(seg, capacity, items)
	if err != nil {
		return err
	}
	logger.Debug("buffer initialized", zap.String("path", seg.Path), zap.Int("capacity", capacity), zap.Int("items", items))

	// the consumer process shares the output
	out := zapcore.Lock(zapcore.AddSync(cmd.OutOrStdout()))
	ctx := cmd.Context()

	produceCtx, cancelProduce := context.WithCancel(ctx)
	defer cancelProduce()

	var (
		consumerExited chan struct{}
		consumerErr    error
	)
	if opts.consumer != "" {
		fmt.Fprintln(out, "Launching Consumer")
		consumer := exec.CommandContext(ctx, opts.consumer, "--config", opts.configPath)
		consumer.Env = append(os.Environ(), "MODPROD_SEGMENT="+cfg.Buffer.SegmentName)
		consumer.Stdout = out
		consumer.Stderr = cmd.ErrOrStderr()
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("failed to launch consumer: %w", err)
		}
		logger.Debug("consumer launched", zap.Int("pid", consumer.Process.Pid))
		consumerExited = make(chan struct{})
		go func() {
			consumerErr = consumer.Wait()
			close(consumerExited)
			// a producer spinning on a full buffer would wait forever
			cancelProduce()
		}()
	}

	fmt.Fprintln(out, "Starting Producer")
	err = produce(produceCtx, buf, dataset.NewRand(uint64(seed)), cfg.Buffer, out)
	if err != nil {
		if consumerExited != nil {
			<-consumerExited
			if ctx.Err() == nil {
				return fmt.Errorf("%w: %v", ErrConsumerExited, consumerErr)
			}
		}
		return err
	}
	fmt.Fprintln(out, "Producer done and waiting for consumer")
	if consumerExited != nil {
		<-consumerExited
		err = consumerErr
	} else {
		err = buf.Drain(ctx)
	}
	if err != nil {
		return fmt.Errorf("consumer failed: %w", err)
	}
	fmt.Fprintln(out, "Consumer Completed")
	return nil
}

func produce(ctx context.Context, buf *shm.Buffer, rng *dataset.Rand, cfg config.BufferConfig, out io.Writer) error {
	err := buf.Produce(ctx,
		func() int32 { return int32(rng.Intn(cfg.MinValue, cfg.MaxValue)) },
		func(it shm.Item) {
			fmt.Fprintf(out, "Producing Item %d with value %d at Index %d\n", it.Seq, it.Value, it.Index)
		})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Producer Completed")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
