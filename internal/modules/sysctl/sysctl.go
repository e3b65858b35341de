// Package sysctl sets kernel parameters at runtime and, optionally, in
// /etc/sysctl.conf.
package sysctl

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

const confFile = "/etc/sysctl.conf"

// Params are the sysctl todo parameters.
type Params struct {
	Attribute string `yaml:"attribute" validate:"required,excludesall=0x7C"`
	Value     string `yaml:"value" validate:"required,excludesall=0x7C"`
	Permanent bool   `yaml:"permanent"`
}

// Module converges one kernel parameter.
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
		log:    log.With().Str("attribute", p.Attribute).Logger(),
	}, nil
}

// Reconcile compares the runtime value with the desired one and writes it
// when they differ.
func (m *Module) Reconcile(ctx context.Context, target modules.Target) types.Outcome {
	r := target.Runner
	want := normalize(m.params.Value)

	current, err := m.runtimeValue(ctx, r)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to read the kernel parameter.")
		return types.Failed
	}
	m.log.Debug().Msgf("Current value: %s", current)
	if current == want {
		return types.Unchanged
	}

	if m.params.Permanent {
		if !m.persist(ctx, r) {
			return types.Failed
		}
	} else if !m.sudo(ctx, r, "sysctl -w "+runner.Arg(m.params.Attribute+"="+m.params.Value)) {
		return types.Failed
	}

	after, err := m.runtimeValue(ctx, r)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to re-read the kernel parameter.")
		return types.Failed
	}
	if after != want {
		m.log.Error().Msgf("Value is %q after the update, want %q.", after, want)
		return types.Failed
	}
	return types.Changed
}

func (m *Module) runtimeValue(ctx context.Context, r *runner.Runner) (string, error) {
	res, err := r.Sudo(ctx, "sysctl -n "+runner.Arg(m.params.Attribute))
	if err != nil {
		return "", err
	}
	return normalize(res.Stdout), nil
}

// persist writes the entry to the configuration file, replacing an existing
// one, and reloads the file.
func (m *Module) persist(ctx context.Context, r *runner.Runner) bool {
	res, err := r.Run(ctx, m.lookupCommand())
	if err != nil {
		m.log.Error().Err(err).Msgf("Failed to read %s.", confFile)
		return false
	}
	persisted, found := lastValue(res.Stdout)
	if found {
		m.log.Debug().Msgf("Currently defined in %s file: %s", confFile, persisted)
	}

	if !m.sudo(ctx, r, m.persistCommand(found)) {
		return false
	}
	return m.reload(ctx, r)
}

// reload runs sysctl -p. A non-zero exit is only a warning since any unknown
// key elsewhere in the file makes it fail; the re-read decides the outcome.
func (m *Module) reload(ctx context.Context, r *runner.Runner) bool {
	res, err := r.Sudo(ctx, "sysctl -p")
	switch {
	case err != nil:
		m.log.Error().Err(err).Msgf("Failed to reload %s.", confFile)
		return false
	case res.AuthFailed():
		m.log.Error().Msg("Sysctl module can't be executed without sudo password.")
		return false
	case res.ExitCode != 0:
		m.log.Warn().Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msgf("Reloading %s reported errors.", confFile)
	}
	return true
}

// sudo runs an elevated command and reports whether it succeeded.
func (m *Module) sudo(ctx context.Context, r *runner.Runner, cmd string) bool {
	res, err := r.Sudo(ctx, cmd)
	switch {
	case err != nil:
		m.log.Error().Err(err).Msg("Failed to update the kernel parameter.")
		return false
	case res.AuthFailed():
		m.log.Error().Msg("Sysctl module can't be executed without sudo password.")
		return false
	case res.ExitCode != 0:
		m.log.Error().Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msg("Failed to update the kernel parameter.")
		return false
	}
	return true
}

func (m *Module) entryPattern() string {
	return `^[[:space:]]*` + regexp.QuoteMeta(m.params.Attribute) + `[[:space:]]*=`
}

func (m *Module) lookupCommand() string {
	return "grep -E " + runner.Quote(m.entryPattern()) + " " + confFile
}

func (m *Module) persistCommand(exists bool) string {
	entry := m.params.Attribute + " = " + m.params.Value
	if exists {
		return "sed -i " + runner.Quote("s|"+m.entryPattern()+".*|"+sedReplacement(entry)+"|") + " " + confFile
	}
	return "sh -c " + runner.Quote("echo "+runner.Quote(entry)+" >> "+confFile)
}

// sedReplacement escapes the characters sed interprets in a replacement.
func sedReplacement(s string) string {
	return strings.NewReplacer(`\`, `\\`, `&`, `\&`).Replace(s)
}

// lastValue returns the value of the last "key = value" line in out.
func lastValue(out string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if _, value, ok := strings.Cut(lines[i], "="); ok {
			return normalize(value), true
		}
	}
	return "", false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
