package runner

import (
	"context"
	"sync"
)

// MockResult is the scripted answer to one command.
type MockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// MockExecutor answers commands from a script and records every call. A
// command may be scripted with several results, consumed in order; the last
// one repeats. Unknown commands exit 127.
type MockExecutor struct {
	mu      sync.Mutex
	scripts map[string][]MockResult
	calls   []string
}

// NewMockExecutor returns an empty MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{scripts: map[string][]MockResult{}}
}

// Set scripts the results returned for cmd.
func (m *MockExecutor) Set(cmd string, results ...MockResult) {
	m.mu.Lock()
	m.scripts[cmd] = results
	m.mu.Unlock()
}

// Exec implements Executor.
func (m *MockExecutor) Exec(ctx context.Context, cmd string) (string, string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", "", -1, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)

	queue, ok := m.scripts[cmd]
	if !ok || len(queue) == 0 {
		return "", "command not found: " + cmd, 127, nil
	}
	r := queue[0]
	if len(queue) > 1 {
		m.scripts[cmd] = queue[1:]
	}
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

// Calls returns the commands executed so far, in order.
func (m *MockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Called reports how many times cmd was executed.
func (m *MockExecutor) Called(cmd string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == cmd {
			n++
		}
	}
	return n
}
