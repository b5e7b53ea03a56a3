package tmux

import (
	"context"
	"os/exec"
)

// Runner executes a command and returns its combined output. Tests swap in
// a fake; production uses OSRunner.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}
