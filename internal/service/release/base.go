package release

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/executor"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/storage"
)

// DefaultRsyncProgram is used when no rsync path is configured.
const DefaultRsyncProgram = "rsync"

// Syncer mirrors the content of one directory into another.
type Syncer interface {
	Sync(ctx context.Context, source, destination string) error
}

// RsyncSyncer delegates synchronization to rsync(1).
type RsyncSyncer struct {
	runner  executor.Runner
	program string
}

// NewRsyncSyncer returns a Syncer running program, rsync by default, through
// runner, the local host when nil.
func NewRsyncSyncer(runner executor.Runner, program string) *RsyncSyncer {
	if runner == nil {
		runner = executor.NewLocal()
	}

	if program == "" {
		program = DefaultRsyncProgram
	}

	return &RsyncSyncer{runner: runner, program: program}
}

// Sync makes destination an exact copy of source, deleting extra files.
func (r *RsyncSyncer) Sync(ctx context.Context, source, destination string) error {
	source = strings.TrimSuffix(source, "/") + "/"

	if _, err := r.runner.Run(ctx, r.program, "-a", "--delete", source, destination); err != nil {
		return fmt.Errorf("sync %s to %s: %w", source, destination, err)
	}

	return nil
}

// UpdateBase mirrors the release root into its base dataset, deleting files
// the root no longer has. The base dataset and one child dataset per base
// directory are created when missing. The root has to be fetched and mounted.
func (s *Service) UpdateBase(ctx context.Context, rel *domain.Release) error {
	root, err := s.requireFetched(ctx, rel)
	if err != nil {
		return err
	}

	baseName := s.BaseDatasetName(rel)

	base, err := s.mountedDataset(ctx, baseName)
	if err != nil {
		return err
	}

	for _, dir := range s.host.Distribution.BaseDirs() {
		if _, err = s.mountedDataset(ctx, storage.Join(baseName, dir)); err != nil {
			return err
		}
	}

	logger.DebugKV(ctx, "Synchronizing base dataset", "source", root.Mountpoint, "destination", base.Mountpoint)

	return s.syncer.Sync(ctx, root.Mountpoint, base.Mountpoint)
}

// mountedDataset returns the dataset, creating and mounting it when needed.
func (s *Service) mountedDataset(ctx context.Context, name string) (*storage.Dataset, error) {
	dataset, err := s.driver.GetOrCreateDataset(ctx, name)
	if err != nil {
		return nil, &domain.StorageError{Op: "create dataset", Name: name, Err: err}
	}

	if dataset.Mounted {
		return dataset, nil
	}

	dataset, err = s.driver.Mount(ctx, name)
	if err != nil {
		return nil, &domain.StorageError{Op: "mount dataset", Name: name, Err: err}
	}

	return dataset, nil
}
