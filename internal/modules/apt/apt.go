// Package apt installs and removes Debian packages.
package apt

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

const (
	statePresent = "present"
	stateAbsent  = "absent"

	installedMarker = "ok installed"
)

// benignStderr lists prefixes of stderr lines that do not indicate a failure.
var benignStderr = []string{
	"dpkg-preconfigure: unable to re-open stdin",
	"debconf:",
}

// Params are the apt todo parameters.
type Params struct {
	Name  string `yaml:"name" validate:"required"`
	State string `yaml:"state" validate:"required,oneof=present absent"`
}

// Module converges one package to the desired state.
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
	return &Module{
		params: p,
		log:    log.With().Str("package", p.Name).Logger(),
	}, nil
}

// Reconcile refreshes the package index, checks the installation status and
// installs or removes the package when needed.
func (m *Module) Reconcile(ctx context.Context, target modules.Target) types.Outcome {
	update, err := target.Runner.Sudo(ctx, "apt-get update")
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to refresh the package index.")
		return types.Failed
	}
	if update.AuthFailed() {
		m.log.Error().Msg("apt module can't be executed without sudo password.")
		return types.Failed
	}
	if update.ExitCode != 0 {
		m.log.Warn().Str("stderr", update.Stderr).Msg("Package index refresh reported errors.")
	}

	installed, err := m.installed(ctx, target.Runner)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to query the package status.")
		return types.Failed
	}
	if installed == (m.params.State == statePresent) {
		m.log.Debug().Msgf("Package %s is already %s.", m.params.Name, m.params.State)
		return types.Unchanged
	}

	res, err := target.Runner.Sudo(ctx, m.command())
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to run apt-get.")
		return types.Failed
	}
	if stderr := unexpectedStderr(res.Stderr); stderr != "" || res.ExitCode != 0 {
		m.log.Error().Int("exit_code", res.ExitCode).Msgf("While trying to %s %s, STDERR:\n%s", m.action(), m.params.Name, stderr)
		return types.Failed
	}
	return types.Changed
}

func (m *Module) installed(ctx context.Context, r *runner.Runner) (bool, error) {
	res, err := r.Run(ctx, "dpkg -s "+runner.Arg(m.params.Name))
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.HasPrefix(line, "Status:") && strings.Contains(line, installedMarker) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Module) action() string {
	if m.params.State == stateAbsent {
		return "autoremove"
	}
	return "install"
}

func (m *Module) command() string {
	return "env DEBIAN_FRONTEND=noninteractive apt-get " + m.action() + " -y " + runner.Arg(m.params.Name)
}

// unexpectedStderr drops benign notices and returns whatever is left.
func unexpectedStderr(stderr string) string {
	var kept []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isBenign(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isBenign(line string) bool {
	for _, prefix := range benignStderr {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
