// Package zfs implements storage.Driver on top of the zfs(8) command.
package zfs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/jail-release/internal/executor"
	"github.com/oshokin/jail-release/internal/storage"
)

// DefaultProgram is the zfs binary looked up in PATH.
const DefaultProgram = "zfs"

var (
	errUnexpectedOutput = errors.New("unexpected zfs output")
	errNotSnapshotName  = errors.New("not a snapshot name")
)

// Driver manages datasets and snapshots through the zfs command.
type Driver struct {
	runner  executor.Runner
	program string
}

// New returns a Driver. An empty program selects DefaultProgram.
func New(runner executor.Runner, program string) *Driver {
	if program == "" {
		program = DefaultProgram
	}

	return &Driver{runner: runner, program: program}
}

// GetDataset looks up a filesystem dataset.
func (d *Driver) GetDataset(ctx context.Context, name string) (*storage.Dataset, error) {
	result, err := d.run(ctx, "list", "-H", "-p", "-o", "name,mountpoint,mounted", "-t", "filesystem", name)
	if err != nil {
		return nil, err
	}

	fields, err := singleRecord(result.Stdout, 3)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}

	mountpoint := fields[1]
	if mountpoint == "-" || mountpoint == "none" || mountpoint == "legacy" {
		mountpoint = ""
	}

	return &storage.Dataset{
		Name:       fields[0],
		Mountpoint: mountpoint,
		Mounted:    fields[2] == "yes",
	}, nil
}

// GetOrCreateDataset creates the dataset with its parents when it is absent.
func (d *Driver) GetOrCreateDataset(ctx context.Context, name string) (*storage.Dataset, error) {
	dataset, err := d.GetDataset(ctx, name)
	if err == nil {
		return dataset, nil
	}

	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if _, err = d.run(ctx, "create", "-p", name); err != nil {
		return nil, err
	}

	return d.GetDataset(ctx, name)
}

// Mount mounts the dataset.
func (d *Driver) Mount(ctx context.Context, name string) (*storage.Dataset, error) {
	if _, err := d.run(ctx, "mount", name); err != nil {
		return nil, err
	}

	return d.GetDataset(ctx, name)
}

// DeleteDatasetRecursive destroys the dataset, its children and snapshots.
func (d *Driver) DeleteDatasetRecursive(ctx context.Context, name string) error {
	_, err := d.run(ctx, "destroy", "-r", name)

	return err
}

// GetSnapshot looks up a snapshot.
func (d *Driver) GetSnapshot(ctx context.Context, name string) (*storage.Snapshot, error) {
	result, err := d.run(ctx, "list", "-H", "-p", "-o", "name,guid,creation", "-t", "snapshot", name)
	if err != nil {
		return nil, err
	}

	fields, err := singleRecord(result.Stdout, 3)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}

	snapshot := &storage.Snapshot{
		Name: fields[0],
		GUID: fields[1],
	}

	if seconds, parseErr := strconv.ParseInt(fields[2], 10, 64); parseErr == nil {
		snapshot.CreatedAt = time.Unix(seconds, 0).UTC()
	}

	return snapshot, nil
}

// CreateSnapshot snapshots the dataset named before "@".
func (d *Driver) CreateSnapshot(ctx context.Context, name string) (*storage.Snapshot, error) {
	if _, err := d.run(ctx, "snapshot", name); err != nil {
		return nil, err
	}

	return d.GetSnapshot(ctx, name)
}

// DeleteSnapshot destroys a single snapshot.
func (d *Driver) DeleteSnapshot(ctx context.Context, name string) error {
	if !strings.Contains(name, "@") {
		return fmt.Errorf("destroy %s: %w", name, errNotSnapshotName)
	}

	_, err := d.run(ctx, "destroy", name)

	return err
}

// run executes a zfs subcommand and maps "does not exist" failures to storage.ErrNotFound.
func (d *Driver) run(ctx context.Context, args ...string) (*executor.Result, error) {
	result, err := d.runner.Run(ctx, d.program, args...)
	if err == nil {
		return result, nil
	}

	var exitErr *executor.ExitError
	if errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "does not exist") {
		return nil, fmt.Errorf("%s: %w", args[len(args)-1], storage.ErrNotFound)
	}

	return nil, fmt.Errorf("zfs %s: %w", args[0], err)
}

// singleRecord splits the first tab-separated line of zfs -H output.
func singleRecord(output string, fieldCount int) ([]string, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")

	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return nil, fmt.Errorf("%q: %w", line, errUnexpectedOutput)
	}

	return fields, nil
}
