// Package executor applies the todo list to one host over one session.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/modules/apt"
	"github.com/eniac111/mla/internal/modules/command"
	copymod "github.com/eniac111/mla/internal/modules/copy"
	"github.com/eniac111/mla/internal/modules/service"
	"github.com/eniac111/mla/internal/modules/sysctl"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/ssh"
	"github.com/eniac111/mla/internal/types"
)

const DefaultAttempts = 3

var (
	ErrUnknownModule  = errors.New("unrecognized module")
	ErrNotImplemented = errors.New("module has yet to be implemented")
)

// Session is an open transport session to one host.
type Session interface {
	runner.Executor
	modules.FileTransfer
	Close() error
}

// Connector opens sessions. One call is one attempt.
type Connector interface {
	Connect(ctx context.Context, host types.Host) (Session, error)
}

// Recorder receives measurements. It may be nil.
type Recorder interface {
	Outcome(module string, outcome types.Outcome, elapsed time.Duration)
	ConnectAttempt(ok bool)
}

// Build resolves the todo's module variant and decodes its parameters.
func Build(todo types.Todo, log zerolog.Logger) (modules.Module, error) {
	switch modules.Kind(todo.Module) {
	case modules.Apt:
		return build(apt.New(todo, log))
	case modules.Command:
		return build(command.New(todo, log))
	case modules.Copy:
		return build(copymod.New(todo, log))
	case modules.Service:
		return build(service.New(todo, log))
	case modules.Sysctl:
		return build(sysctl.New(todo, log))
	case modules.Template:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, todo.Module)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, todo.Module)
	}
}

func build[M modules.Module](m M, err error) (modules.Module, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TodoResult is the outcome of one processed todo.
type TodoResult struct {
	Index   int
	Module  string
	Outcome types.Outcome
}

// HostReport summarizes one host's run.
type HostReport struct {
	Host      types.Host
	Reachable bool
	Results   []TodoResult
	Skipped   int
}

// Count returns how many processed todos ended with outcome.
func (r HostReport) Count(outcome types.Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Options configures an Executor.
type Options struct {
	Attempts int
}

// Executor runs todo lists against hosts.
type Executor struct {
	connector Connector
	attempts  int
	recorder  Recorder
	log       zerolog.Logger
	build     func(types.Todo, zerolog.Logger) (modules.Module, error)
}

// New returns an Executor. A nil recorder disables measurements.
func New(connector Connector, opts Options, recorder Recorder, log zerolog.Logger) *Executor {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	return &Executor{connector: connector, attempts: opts.Attempts, recorder: recorder, log: log, build: Build}
}

// Run connects to host and applies todos in order. The session, once opened,
// is always closed before Run returns.
func (e *Executor) Run(ctx context.Context, host types.Host, todos []types.Todo) HostReport {
	log := e.log.With().Str("host", host.Address).Logger()
	report := HostReport{Host: host}

	session := e.connect(ctx, host, log)
	if session == nil {
		log.Error().
			Str("auth", string(host.Auth)).
			Msgf("Could not connect to host %s, process stopping. Used %s authentication.", host.Address, host.Auth)
		return report
	}
	report.Reachable = true
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close the ssh connection.")
		}
	}()

	target := modules.Target{
		Runner:  runner.New(session, host.PrivilegePassword(), log),
		Files:   session,
		Address: host.Address,
	}

	for i, todo := range todos {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("todo", i).Msg("Run cancelled, remaining todos skipped.")
			report.Skipped += len(todos) - i
			break
		}

		todoLog := log.With().Int("todo", i).Str("module", todo.Module).Logger()
		module, err := e.build(todo, todoLog)
		switch {
		case errors.Is(err, ErrNotImplemented):
			todoLog.Warn().Msgf("The module %q has yet to be implemented.", todo.Module)
			report.Skipped++
			continue
		case errors.Is(err, ErrUnknownModule):
			todoLog.Error().Msgf("Unrecognized module %q, skipping.", todo.Module)
			report.Skipped++
			continue
		}

		start := time.Now()
		outcome := types.Failed
		if err != nil {
			todoLog.Error().Err(err).Msg("Invalid module parameters.")
		} else {
			outcome = reconcile(ctx, module, target, todoLog)
		}
		if e.recorder != nil {
			e.recorder.Outcome(todo.Module, outcome, time.Since(start))
		}

		report.Results = append(report.Results, TodoResult{Index: i, Module: todo.Module, Outcome: outcome})
		todoLog.Info().Msgf("Todo no %d done ; module: %s on %s ====> %s", i, todo.Module, host.Address, outcome.Keyword())
	}
	return report
}

// reconcile runs one module. A panic fails the todo instead of the whole run.
func reconcile(ctx context.Context, module modules.Module, target modules.Target, log zerolog.Logger) (outcome types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Module panicked.")
			outcome = types.Failed
		}
	}()
	return module.Reconcile(ctx, target)
}

func (e *Executor) connect(ctx context.Context, host types.Host, log zerolog.Logger) Session {
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if ctx.Err() != nil {
			return nil
		}
		session, err := e.connector.Connect(ctx, host)
		if e.recorder != nil {
			e.recorder.ConnectAttempt(err == nil)
		}
		if err == nil {
			return session
		}
		log.Error().Err(err).Int("attempt", attempt).Msg(ssh.Cause(err))
	}
	return nil
}
