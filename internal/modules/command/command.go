// Package command runs arbitrary shell lines on the remote host.
package command

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/types"
)

// Params are the command todo parameters. Command holds one command per line.
type Params struct {
	Command string `yaml:"command" validate:"required"`
}

// Module runs each command line in order, without elevation.
type Module struct {
	params Params
	log    zerolog.Logger
}

// New decodes and validates the todo parameters.
func New(todo types.Todo, log zerolog.Logger) (*Module, error) {
	var p Params
	if err := modules.DecodeParams(todo, &p); err != nil {
		return nil, err
	}
	return &Module{params: p, log: log}, nil
}

// Lines returns the non-blank command lines.
func (m *Module) Lines() []string {
	var lines []string
	for _, line := range strings.Split(m.params.Command, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Reconcile executes every line. Arbitrary commands have no desired state to
// compare against, so the outcome is Unchanged unless a line could not be
// executed at all.
func (m *Module) Reconcile(ctx context.Context, target modules.Target) types.Outcome {
	m.log.Info().Msg("Make sure to be in debug mode to see stdout and stderr for each command.")

	for _, line := range m.Lines() {
		res, err := target.Runner.Run(ctx, line)
		if err != nil {
			m.log.Error().Err(err).Str("command", line).Msg("Command could not be executed.")
			return types.Failed
		}
		m.log.Debug().
			Str("command", line).
			Int("exit_code", res.ExitCode).
			Str("stdout", res.Stdout).
			Str("stderr", res.Stderr).
			Msg("Command output")
	}
	return types.Unchanged
}
