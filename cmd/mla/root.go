package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eniac111/mla/internal/config"
	"github.com/eniac111/mla/internal/executor"
	"github.com/eniac111/mla/internal/loader"
	"github.com/eniac111/mla/internal/metrics"
	"github.com/eniac111/mla/internal/orchestrator"
	"github.com/eniac111/mla/internal/ssh"
	"github.com/eniac111/mla/internal/types"
)

const usageLine = "mla -f todos.yml -i inventory.yml"

var (
	errUsage     = errors.New("invalid arguments")
	errRunFailed = errors.New("run finished with failures")
)

// inputs are the two files named on the command line.
type inputs struct {
	todoFile      string
	inventoryFile string
}

// parseArgs accepts exactly "-f <todos> -i <inventory>", in either order.
func parseArgs(args []string) (inputs, error) {
	if len(args) != 4 {
		return inputs{}, errUsage
	}
	var in inputs
	for _, i := range []int{0, 2} {
		switch args[i] {
		case "-f":
			in.todoFile = args[i+1]
		case "-i":
			in.inventoryFile = args[i+1]
		default:
			return inputs{}, errUsage
		}
	}
	if in.todoFile == "" || in.inventoryFile == "" {
		return inputs{}, errUsage
	}
	return in, nil
}

func logUsage(log zerolog.Logger) {
	log.Error().Msg("Invalid arguments")
	log.Info().Msg("the program should be run like this:")
	log.Info().Msg(usageLine)
}

func newRootCmd(cfg config.Config, log zerolog.Logger) *cobra.Command {
	var in inputs

	return &cobra.Command{
		Use:                usageLine,
		Short:              "Apply a list of todos to every host of an inventory over SSH",
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Args: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseArgs(args)
			if err != nil {
				logUsage(log)
				return err
			}
			in = parsed
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), in, cfg, log)
		},
	}
}

func run(ctx context.Context, in inputs, cfg config.Config, log zerolog.Logger) error {
	log = log.With().Str("run_id", uuid.NewString()).Logger()

	inv, err := loader.LoadInventory(in.inventoryFile, log)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	todos, err := loader.LoadTodos(in.todoFile, log)
	if err != nil {
		return fmt.Errorf("load todos: %w", err)
	}

	recorder := metrics.New()
	dialer := ssh.NewDialer(ssh.Options{
		Timeout:        cfg.ConnectTimeout,
		KnownHostsFile: cfg.KnownHostsFile,
		UseAgent:       cfg.UseAgent,
	}, log)
	exec := executor.New(sshConnector{dialer: dialer}, executor.Options{Attempts: cfg.ConnectAttempts}, recorder, log)

	summary := orchestrator.New(exec, cfg.Parallel, log).Run(ctx, inv, todos)

	if cfg.MetricsFile != "" {
		if err := recorder.WriteFile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Msg("Failed to write metrics.")
		}
	}
	if !summary.Success() {
		return errRunFailed
	}
	return nil
}

// sshConnector adapts *ssh.Dialer to executor.Connector.
type sshConnector struct {
	dialer *ssh.Dialer
}

func (c sshConnector) Connect(ctx context.Context, host types.Host) (executor.Session, error) {
	session, err := c.dialer.Connect(ctx, host)
	if err != nil {
		return nil, err
	}
	return session, nil
}
