package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eniac111/mla/internal/config"
	"github.com/eniac111/mla/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// execute runs mla and returns the process exit status.
// Arguments are checked before the environment and .env are read.
func execute(ctx context.Context, args []string, out io.Writer) int {
	if _, err := parseArgs(args); err != nil {
		log, _ := logging.New(logging.Options{Writer: out})
		logUsage(log)
		return 2
	}

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, NoColor: cfg.NoColor, Writer: out})
	if err != nil {
		return 1
	}
	if cfgErr != nil {
		log.Error().Err(cfgErr).Msg("Invalid configuration")
		return 1
	}

	cmd := newRootCmd(cfg, log)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)

	switch err := cmd.ExecuteContext(ctx); {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errRunFailed):
		log.Warn().Msg("Some todos failed or some hosts were unreachable.")
		return 1
	default:
		log.Error().Err(err).Msg("Error")
		return 1
	}
}
