// Package runner formats plain and privilege-escalated commands and runs them
// over a remote executor.
package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// authFailureMarker appears in sudo's stderr when the password is wrong or missing.
const authFailureMarker = "incorrect"

// Executor runs one raw command on a remote host. A non-zero exit status is
// reported through exitCode; err is reserved for transport failures.
type Executor interface {
	Exec(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error)
}

// Result is the decoded output of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// AuthFailed reports whether sudo rejected the privilege password.
func (r Result) AuthFailed() bool {
	return strings.Contains(r.Stderr, authFailureMarker)
}

// Line returns stdout without its trailing newline.
func (r Result) Line() string {
	return strings.TrimRight(r.Stdout, "\r\n")
}

// Runner executes commands for one host.
type Runner struct {
	exec     Executor
	password string
	log      zerolog.Logger
}

// New returns a Runner that elevates with password.
func New(exec Executor, password string, log zerolog.Logger) *Runner {
	return &Runner{exec: exec, password: password, log: log}
}

// Run executes command without elevation.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	r.log.Debug().Msgf("Execute command %q WITHOUT sudo.", command)
	return r.do(ctx, command)
}

// Sudo executes command through sudo, feeding the privilege password on stdin.
func (r *Runner) Sudo(ctx context.Context, command string) (Result, error) {
	r.log.Debug().Msgf("Execute command %q WITH sudo.", command)
	return r.do(ctx, Elevate(command, r.password))
}

func (r *Runner) do(ctx context.Context, command string) (Result, error) {
	stdout, stderr, code, err := r.exec.Exec(ctx, command)
	if err != nil {
		return Result{Stdout: stdout, Stderr: stderr, ExitCode: code}, fmt.Errorf("exec: %w", err)
	}
	return Result{Stdout: stdout, Stderr: stderr, ExitCode: code}, nil
}

// Elevate composes command so that password is delivered to sudo on stdin.
// The prompt is suppressed so stderr only carries sudo's verdict and the
// command's own output.
func Elevate(command, password string) string {
	return fmt.Sprintf("echo %s | sudo -S -p '' %s", Quote(password), command)
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Arg returns s unchanged when it is a plain shell word and quoted otherwise.
func Arg(s string) string {
	if s == "" {
		return "''"
	}
	for _, r := range s {
		if !plainRune(r) {
			return Quote(s)
		}
	}
	return s
}

func plainRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("._-+:@/=,%", r)
}
