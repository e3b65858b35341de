// Package service drives systemd units to a run or boot-activation state.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

// Params are the service todo parameters. State is checked by Reconcile so an
// unrecognized value is reported as a failed todo.
type Params struct {
	Name  string `yaml:"name" validate:"required"`
	State string `yaml:"state"`
}

// Module converges one unit.
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
		log:    log.With().Str("service", p.Name).Logger(),
	}, nil
}

// Verb maps the desired state to the systemctl verb. It returns "" for an
// unrecognized state.
func (m *Module) Verb() string {
	switch m.params.State {
	case "started":
		return "start"
	case "stopped":
		return "stop"
	case "restarted":
		return "restart"
	case "enabled":
		return "enable"
	case "disabled":
		return "disable"
	default:
		return ""
	}
}

func (m *Module) bootState() bool {
	return m.params.State == "enabled" || m.params.State == "disabled"
}

// satisfied reports whether a systemctl is-active / is-enabled answer matches
// state.
func satisfied(state, current string) bool {
	switch state {
	case "started", "restarted":
		return current == "active"
	case "stopped":
		return current == "inactive" || current == "failed"
	case "enabled":
		return current == "enabled"
	case "disabled":
		return current == "disabled"
	default:
		return false
	}
}

func (m *Module) query(ctx context.Context, r *runner.Runner) (string, error) {
	cmd := "systemctl is-active " + runner.Arg(m.params.Name)
	if m.bootState() {
		cmd = "systemctl is-enabled " + runner.Arg(m.params.Name)
	}
	res, err := r.Sudo(ctx, cmd)
	if err != nil {
		return "", err
	}
	return res.Line(), nil
}

// Reconcile queries the unit, acts when it is not in the desired state and
// verifies the result.
func (m *Module) Reconcile(ctx context.Context, target modules.Target) types.Outcome {
	verb := m.Verb()
	if verb == "" {
		m.log.Error().Msgf("Unrecognized service state %q.", m.params.State)
		return types.Failed
	}

	current, err := m.query(ctx, target.Runner)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to query the service state.")
		return types.Failed
	}
	if m.params.State != "restarted" && satisfied(m.params.State, current) {
		m.log.Debug().Msgf("Service %s is already %s.", m.params.Name, current)
		return types.Unchanged
	}
	m.log.Debug().Msgf("Service %s is %s, want %s.", m.params.Name, current, m.params.State)

	res, err := target.Runner.Sudo(ctx, "systemctl "+verb+" "+runner.Arg(m.params.Name))
	if err != nil {
		m.log.Error().Err(err).Msgf("Failed to %s the service.", verb)
		return types.Failed
	}
	if res.AuthFailed() {
		m.log.Error().Msgf("Incorrect password provided in inventory file for %s.", target.Address)
		m.log.Error().Msg("Service module can't be executed without sudo password.")
		return types.Failed
	}
	if res.ExitCode != 0 {
		m.log.Error().Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msgf("systemctl %s failed.", verb)
		return types.Failed
	}

	after, err := m.query(ctx, target.Runner)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to query the service state after the action.")
		return types.Failed
	}
	if !satisfied(m.params.State, after) {
		m.log.Error().Msgf("Service %s is %s after %s.", m.params.Name, after, verb)
		return types.Failed
	}
	return types.Changed
}
