package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsario/modprod/config"
	"github.com/rsario/modprod/internal/cli"
	"github.com/rsario/modprod/shm"
)

type options struct {
	verbose    bool
	configPath string
	keep       bool

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "consumer",
		Short: "Read the values a producer writes into a bounded buffer in shared memory",
		Long: `consumer maps the segment a producer created, reads the buffer size and
item count from its header and reads values until it has read them all, or
until the buffer is empty and the producer has finished. It removes the
segment when done.`,
		Args:         cobra.NoArgs,
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
			return runConsumer(cmd, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath, "configuration file")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "do not remove the segment when done")
	return cmd
}

func runConsumer(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("segment", cfg.Buffer.SegmentName))

	seg, err := shm.Open(cfg.Buffer.SegmentName)
	if err != nil {
		return fmt.Errorf("failed to open shared memory block: %w", err)
	}
	defer seg.Close()
	buf, err := shm.AttachBuffer(seg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Consumer reading: bufSize = %d, itemCnt = %d\n", buf.Capacity(), buf.ItemCount())
	n, err := buf.Consume(cmd.Context(), func(it shm.Item) {
		fmt.Fprintf(out, "Consuming Item %d with value %d at Index %d\n", it.Seq, it.Value, it.Index)
	})
	if err != nil {
		return err
	}
	if n < buf.ItemCount() {
		fmt.Fprintln(out, "No more items to consume, exiting.")
		logger.Debug("producer finished early", zap.Int("consumed", n), zap.Int("items", buf.ItemCount()))
		return nil
	}
	if opts.keep {
		return nil
	}
	if err := seg.Unlink(); err != nil {
		return fmt.Errorf("error removing %s: %w", cfg.Buffer.SegmentName, err)
	}
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
