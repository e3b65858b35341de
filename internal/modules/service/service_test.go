package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

const password = "pw"

func sudo(cmd string) string { return runner.Elevate(cmd, password) }

func newModule(t *testing.T, state string) *Module {
	t.Helper()
	todo, err := types.NewTodo("service", map[string]any{"name": "nginx", "state": state})
	require.NoError(t, err)
	m, err := New(todo, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func target(mock *runner.MockExecutor) modules.Target {
	return modules.Target{Runner: runner.New(mock, password, zerolog.Nop()), Address: "10.0.0.7"}
}

func TestVerb(t *testing.T) {
	for state, verb := range map[string]string{
		"started":   "start",
		"stopped":   "stop",
		"restarted": "restart",
		"enabled":   "enable",
		"disabled":  "disable",
		"reloaded":  "",
		"":          "",
	} {
		require.Equal(t, verb, newModule(t, state).Verb(), "state %q", state)
	}
}

func TestReconcileUnrecognizedStateRunsNothing(t *testing.T) {
	mock := runner.NewMockExecutor()
	require.Equal(t, types.Failed, newModule(t, "reloaded").Reconcile(context.Background(), target(mock)))
	require.Empty(t, mock.Calls())
}

func TestReconcileAlreadyInDesiredState(t *testing.T) {
	tests := []struct {
		state   string
		query   string
		current string
	}{
		{state: "started", query: "systemctl is-active nginx", current: "active"},
		{state: "stopped", query: "systemctl is-active nginx", current: "inactive"},
		{state: "stopped", query: "systemctl is-active nginx", current: "failed"},
		{state: "enabled", query: "systemctl is-enabled nginx", current: "enabled"},
		{state: "disabled", query: "systemctl is-enabled nginx", current: "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.state+"/"+tt.current, func(t *testing.T) {
			mock := runner.NewMockExecutor()
			mock.Set(sudo(tt.query), runner.MockResult{Stdout: tt.current + "\n"})

			require.Equal(t, types.Unchanged, newModule(t, tt.state).Reconcile(context.Background(), target(mock)))
			require.Equal(t, []string{sudo(tt.query)}, mock.Calls())
		})
	}
}

func TestReconcileActsAndVerifies(t *testing.T) {
	mock := runner.NewMockExecutor()
	mock.Set(sudo("systemctl is-active nginx"),
		runner.MockResult{Stdout: "inactive\n", ExitCode: 3},
		runner.MockResult{Stdout: "active\n"},
	)
	mock.Set(sudo("systemctl start nginx"), runner.MockResult{})

	require.Equal(t, types.Changed, newModule(t, "started").Reconcile(context.Background(), target(mock)))
	require.Equal(t, []string{
		sudo("systemctl is-active nginx"),
		sudo("systemctl start nginx"),
		sudo("systemctl is-active nginx"),
	}, mock.Calls())
}

func TestReconcileRestartAlwaysActs(t *testing.T) {
	mock := runner.NewMockExecutor()
	mock.Set(sudo("systemctl is-active nginx"), runner.MockResult{Stdout: "active\n"})
	mock.Set(sudo("systemctl restart nginx"), runner.MockResult{})

	require.Equal(t, types.Changed, newModule(t, "restarted").Reconcile(context.Background(), target(mock)))
	require.Equal(t, 1, mock.Called(sudo("systemctl restart nginx")))
}

func TestReconcileFailures(t *testing.T) {
	t.Run("rejected sudo password", func(t *testing.T) {
		mock := runner.NewMockExecutor()
		mock.Set(sudo("systemctl is-enabled nginx"), runner.MockResult{Stdout: "disabled\n"})
		mock.Set(sudo("systemctl enable nginx"), runner.MockResult{Stderr: "sudo: 1 incorrect password attempt\n", ExitCode: 1})

		require.Equal(t, types.Failed, newModule(t, "enabled").Reconcile(context.Background(), target(mock)))
		require.Equal(t, 1, mock.Called(sudo("systemctl is-enabled nginx")))
	})

	t.Run("state not reached", func(t *testing.T) {
		mock := runner.NewMockExecutor()
		mock.Set(sudo("systemctl is-active nginx"), runner.MockResult{Stdout: "inactive\n"})
		mock.Set(sudo("systemctl start nginx"), runner.MockResult{})

		require.Equal(t, types.Failed, newModule(t, "started").Reconcile(context.Background(), target(mock)))
	})

	t.Run("verb fails", func(t *testing.T) {
		mock := runner.NewMockExecutor()
		mock.Set(sudo("systemctl is-active nginx"), runner.MockResult{Stdout: "active\n"})
		mock.Set(sudo("systemctl stop nginx"), runner.MockResult{Stderr: "Failed to stop nginx.service\n", ExitCode: 1})

		require.Equal(t, types.Failed, newModule(t, "stopped").Reconcile(context.Background(), target(mock)))
	})
}
