package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/jail-release/internal/executor"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/platform"
)

var errUpdaterAlreadyRunning = errors.New("the update tool is already running")

// noUpdatesPattern matches the tool output of a run that had nothing to do.
//
//nolint:gochecknoglobals // Compiled once, read-only.
var noUpdatesPattern = regexp.MustCompile(`(?i)no updates are available|already up[ -]to[ -]date`)

// ProcessLister returns the processes running on the host.
type ProcessLister func() ([]ps.Process, error)

// Tool runs the update tool of a distribution.
type Tool struct {
	runner       executor.Runner
	distribution string
	program      string
	processes    ProcessLister
}

// Option customizes a Tool.
type Option func(*Tool)

// WithProgram overrides the update tool binary.
func WithProgram(program string) Option {
	return func(t *Tool) {
		if program != "" {
			t.program = program
		}
	}
}

// WithProcessLister replaces the host process table source.
func WithProcessLister(lister ProcessLister) Option {
	return func(t *Tool) {
		t.processes = lister
	}
}

// New returns a Tool for the distribution running commands through runner.
func New(runner executor.Runner, distribution platform.Distribution, opts ...Option) *Tool {
	t := &Tool{
		runner:       runner,
		distribution: distribution.Name,
		program:      distribution.UpdateTool,
		processes:    ps.Processes,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Fetch downloads the patches available for the release.
func (t *Tool) Fetch(ctx context.Context, rootDir, releaseName string) error {
	ctx = logger.WithName(ctx, "updater")

	if err := t.ensureNotRunning(ctx); err != nil {
		return err
	}

	result, err := t.runner.Run(ctx, t.program, t.args(rootDir, releaseName, true)...)
	if err != nil && !isNoop(result) {
		return fmt.Errorf("fetch updates for %s: %w", releaseName, err)
	}

	logger.InfoKV(ctx, "Updates fetched", "release", releaseName, "root", rootDir)

	return nil
}

// Apply installs fetched patches and reports whether the root changed.
func (t *Tool) Apply(ctx context.Context, rootDir, releaseName string) (bool, error) {
	ctx = logger.WithName(ctx, "updater")

	if err := t.ensureNotRunning(ctx); err != nil {
		return false, err
	}

	result, err := t.runner.Run(ctx, t.program, t.args(rootDir, releaseName, false)...)
	if isNoop(result) {
		logger.InfoKV(ctx, "No updates to install", "release", releaseName)
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("install updates for %s: %w", releaseName, err)
	}

	logger.InfoKV(ctx, "Updates installed", "release", releaseName, "root", rootDir)

	return true, nil
}

func (t *Tool) args(rootDir, releaseName string, fetch bool) []string {
	if t.distribution == platform.HardenedBSD {
		args := []string{
			"-c", filepath.Join(rootDir, "etc", "hbsd-update.conf"),
			"-r", rootDir,
			"-n",
		}

		if fetch {
			args = append(args, "-f")
		}

		return args
	}

	command := "install"
	if fetch {
		command = "fetch"
	}

	return []string{
		"-b", rootDir,
		"-d", filepath.Join(rootDir, "var", "db", "freebsd-update"),
		"-f", filepath.Join(rootDir, "etc", "freebsd-update.conf"),
		"--not-running-from-cron",
		"--currently-running", releaseName,
		command,
	}
}

// ensureNotRunning fails when another process of the tool is alive.
func (t *Tool) ensureNotRunning(ctx context.Context) error {
	processList, err := t.processes()
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes", "error", err)
		return nil
	}

	executable := filepath.Base(t.program)
	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID || process.Executable() != executable {
			continue
		}

		return fmt.Errorf("%s (pid %d): %w", executable, process.Pid(), errUpdaterAlreadyRunning)
	}

	return nil
}

func isNoop(result *executor.Result) bool {
	if result == nil {
		return false
	}

	return noUpdatesPattern.MatchString(result.Stdout) || noUpdatesPattern.MatchString(result.Stderr)
}
