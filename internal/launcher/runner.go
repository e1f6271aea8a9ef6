package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Runner executes a compiled entry file.
type Runner interface {
	// Run executes entry with the block manifest and blocks until it exits.
	Run(ctx context.Context, entry, manifest string) error
}

// CommandRunner runs the entry with an external runtime such as node.
type CommandRunner struct {
	Command string
	Args    []string
	Stdout  io.Writer
	Stderr  io.Writer
}

// NewCommandRunner creates a runner that forwards output to the process's
// own stdout and stderr.
func NewCommandRunner(command string, args ...string) *CommandRunner {
	return &CommandRunner{
		Command: command,
		Args:    args,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Run starts the runtime as `command args... entry manifest`. The manifest
// path is also exported as MARSX_BLOCKS_MANIFEST.
func (r *CommandRunner) Run(ctx context.Context, entry, manifest string) error {
	args := append([]string{}, r.Args...)
	args = append(args, entry, manifest)

	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Env = append(os.Environ(), "MARSX_BLOCKS_MANIFEST="+manifest)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("%s exited with code %d: %w", r.Command, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("failed to run %s: %w", r.Command, err)
	}
	return nil
}
