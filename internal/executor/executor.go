// Package executor runs the external tools the release services delegate to
// (zfs, rsync, freebsd-update, uname) and captures their output.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/jail-release/internal/logger"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}

	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, stderr)
}

// Runner executes a program with arguments.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (*Result, error)
}

// Local runs commands on the host.
type Local struct {
	// Dir is the working directory, empty for the current one.
	Dir string
}

// NewLocal returns a Runner executing commands on the host.
func NewLocal() *Local {
	return &Local{}
}

// Run executes the program and returns its output. A non-zero exit status is
// reported as *ExitError together with the captured Result.
func (l *Local) Run(ctx context.Context, program string, args ...string) (*Result, error) {
	commandLine := strings.Join(append([]string{program}, args...), " ")
	logger.DebugKV(ctx, "Running command", "command", commandLine)

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = l.Dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return result, &ExitError{
			Command:  commandLine,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}

	return result, fmt.Errorf("run %s: %w", program, err)
}
