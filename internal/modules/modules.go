// Package modules defines the contract shared by every resource module.
package modules

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/eniac111/mla/internal/runner"
	"github.com/eniac111/mla/internal/types"
)

// Kind is the module discriminator named by a todo.
type Kind string

const (
	Apt      Kind = "apt"
	Command  Kind = "command"
	Copy     Kind = "copy"
	Service  Kind = "service"
	Sysctl   Kind = "sysctl"
	Template Kind = "template"
)

// Module reconciles one todo against one host. Failures are reported as
// types.Failed, never as an error.
type Module interface {
	Reconcile(ctx context.Context, target Target) types.Outcome
}

// FileTransfer is the file sub-channel of a transport session.
type FileTransfer interface {
	MkdirAll(ctx context.Context, dir string) error
	Upload(ctx context.Context, localPath, remotePath string) error
	Rename(ctx context.Context, oldPath, newPath string) error
}

// Target is the host a module acts on.
type Target struct {
	Runner  *runner.Runner
	Files   FileTransfer
	Address string
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// DecodeParams decodes the todo's parameters into out and validates them.
func DecodeParams(todo types.Todo, out any) error {
	if err := todo.DecodeParams(out); err != nil {
		return fmt.Errorf("decode %s params: %w", todo.Module, err)
	}
	if err := paramValidator().Struct(out); err != nil {
		return fmt.Errorf("invalid %s params: %w", todo.Module, err)
	}
	return nil
}
