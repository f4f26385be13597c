// Package cli holds what the modprod commands share: logger construction and
// integer argument parsing.
package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production logger, at debug level if verbose is set.
// It logs to stderr so that stdout carries only the report.
func NewLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Ints parses args as decimal integers. A malformed args[i] is reported
// wrapped in errs[i].
func Ints(args []string, errs ...error) ([]int, error) {
	if len(errs) != len(args) {
		panic(fmt.Sprintf("%d arguments but %d errors", len(args), len(errs)))
	}
	values := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", errs[i], arg)
		}
		values[i] = v
	}
	return values, nil
}

// ExactArgs is cobra.ExactArgs with an error that wraps errCount.
func ExactArgs(n int, errCount error) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: want %d, got %d", errCount, n, len(args))
		}
		return nil
	}
}
