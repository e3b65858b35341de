package command

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/mla/internal/modules"
	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

func newModule(t *testing.T, cmd string, log zerolog.Logger) *Module {
	t.Helper()
	todo, err := types.NewTodo("command", map[string]any{"command": cmd})
	require.NoError(t, err)
	m, err := New(todo, log)
	require.NoError(t, err)
	return m
}

func TestNewRequiresCommand(t *testing.T) {
	todo, err := types.NewTodo("command", map[string]any{"cmd": "ls"})
	require.NoError(t, err)
	_, err = New(todo, zerolog.Nop())
	require.Error(t, err)
}

func TestReconcileRunsLinesInOrder(t *testing.T) {
	mock := runner.NewMockExecutor()
	mock.Set("echo hi", runner.MockResult{Stdout: "hi\n"})
	mock.Set("false", runner.MockResult{ExitCode: 1})
	mock.Set("uname -r", runner.MockResult{Stdout: "6.1.0\n"})

	var buf bytes.Buffer
	log := zerolog.New(&buf)
	m := newModule(t, "echo hi\n\n  false\nuname -r\n", log)

	outcome := m.Reconcile(context.Background(), modules.Target{Runner: runner.New(mock, "", zerolog.Nop())})
	require.Equal(t, types.Unchanged, outcome)
	require.Equal(t, []string{"echo hi", "false", "uname -r"}, mock.Calls())
	require.Contains(t, buf.String(), `"stdout":"hi\n"`)
}

func TestReconcileTransportFailure(t *testing.T) {
	mock := runner.NewMockExecutor()
	mock.Set("echo hi", runner.MockResult{Err: errors.New("connection reset")})

	m := newModule(t, "echo hi\necho again", zerolog.Nop())
	outcome := m.Reconcile(context.Background(), modules.Target{Runner: runner.New(mock, "", zerolog.Nop())})
	require.Equal(t, types.Failed, outcome)
	require.Equal(t, []string{"echo hi"}, mock.Calls())
}
