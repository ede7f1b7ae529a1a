package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"heicconv/logger"
)

// errReported marks a failed run whose details are already on screen.
var errReported = errors.New("conversion finished with errors")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand(convert).ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errReported) {
			os.Stderr.WriteString("Error: " + err.Error() + "\n")
		}
		os.Exit(1)
	}
}

func convert(cmd *cobra.Command, cfg *Config) error {
	console := logger.NewConsole(cfg.LoggerOptions(cmd.OutOrStdout()))

	processor, err := NewProcessor(cfg, console)
	if err != nil {
		return err
	}

	summary, err := processor.Run(cmd.Context())
	if err != nil {
		console.Error("Processing error: %v", err)
		return errReported
	}

	if summary.HasFailures() {
		return errReported
	}
	return nil
}
