// Package orchestrator applies the todo list to every inventory host.
package orchestrator

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eniac111/mla/internal/executor"
	"github.com/eniac111/mla/internal/types"
)

// HostRunner processes one host. *executor.Executor implements it.
type HostRunner interface {
	Run(ctx context.Context, host types.Host, todos []types.Todo) executor.HostReport
}

// Summary is the fan-in of every host report, in inventory order.
type Summary struct {
	Reports []executor.HostReport
}

// Success reports whether every host was reached and no todo failed.
func (s Summary) Success() bool {
	for _, r := range s.Reports {
		if !r.Reachable || r.Count(types.Failed) > 0 {
			return false
		}
	}
	return true
}

// Orchestrator runs hosts with at most parallel workers. Todos within a host
// always run in order on that host's worker.
type Orchestrator struct {
	runner   HostRunner
	parallel int
	log      zerolog.Logger
}

// New returns an Orchestrator. parallel below 1 means sequential.
func New(runner HostRunner, parallel int, log zerolog.Logger) *Orchestrator {
	if parallel < 1 {
		parallel = 1
	}
	return &Orchestrator{runner: runner, parallel: parallel, log: log}
}

// Run processes every host and returns their reports once all are done.
func (o *Orchestrator) Run(ctx context.Context, inv types.Inventory, todos []types.Todo) Summary {
	reports := make([]executor.HostReport, len(inv.Hosts))

	var g errgroup.Group
	g.SetLimit(o.parallel)
	for i, host := range inv.Hosts {
		i, host := i, host
		g.Go(func() error {
			reports[i] = o.runner.Run(ctx, host, todos)
			o.log.Info().Str("host", host.Address).Msg("Closing ssh connection.")
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Reports: reports}
	o.recap(summary)
	o.log.Info().Msg("Closing MLA session.")
	return summary
}

func (o *Orchestrator) recap(s Summary) {
	for _, r := range s.Reports {
		event := o.log.Info()
		if !r.Reachable || r.Count(types.Failed) > 0 {
			event = o.log.Warn()
		}
		unreachable := 0
		if !r.Reachable {
			unreachable = 1
		}
		event.
			Str("host", r.Host.Address).
			Int("ok", r.Count(types.Unchanged)).
			Int("changed", r.Count(types.Changed)).
			Int("failed", r.Count(types.Failed)).
			Int("skipped", r.Skipped).
			Int("unreachable", unreachable).
			Msg("Recap")
	}
}
