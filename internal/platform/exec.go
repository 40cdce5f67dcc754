package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes host commands. The firewall compiler only touches
// packet-filter state through a Runner, so tests can substitute a fake
// and assert the exact command transcript.
type Runner interface {
	// Run executes a command and returns its combined stdout/stderr output.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// CommandError reports a command that started but exited non-zero.
type CommandError struct {
	Command    string
	ExitStatus int
	Output     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitStatus, strings.TrimSpace(e.Output))
}

// ExecRunner runs commands on the host via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		cmdline := name + " " + strings.Join(args, " ")
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out.String(), &CommandError{
				Command:    cmdline,
				ExitStatus: exitErr.ExitCode(),
				Output:     out.String(),
			}
		}
		return "", fmt.Errorf("%s: %w", cmdline, err)
	}
	return strings.TrimSpace(out.String()), nil
}

// Which reports whether an executable is present on PATH.
func Which(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
