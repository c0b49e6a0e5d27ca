package release

import (
	"context"
	"errors"

	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/storage"
)

// Snapshot returns the snapshot "{root dataset}@{identifier}" of the release.
// An existing snapshot is reused unless force is set, in which case it is
// deleted and taken again. Lookup failures other than a missing snapshot are
// returned as *domain.StorageError.
func (s *Service) Snapshot(ctx context.Context, rel *domain.Release, identifier string, force bool) (*storage.Snapshot, error) {
	name := storage.SnapshotName(s.RootDatasetName(rel), identifier)
	ctx = logger.WithKV(ctx, "snapshot", name)

	existing, err := s.driver.GetSnapshot(ctx, name)

	switch {
	case err == nil && !force:
		logger.Info(ctx, "Reusing existing snapshot")

		return existing, nil
	case err == nil:
		logger.Info(ctx, "Deleting existing snapshot")

		if err = s.driver.DeleteSnapshot(ctx, name); err != nil {
			return nil, &domain.StorageError{Op: "delete snapshot", Name: name, Err: err}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, &domain.StorageError{Op: "get snapshot", Name: name, Err: err}
	}

	snapshot, err := s.driver.CreateSnapshot(ctx, name)
	if err != nil {
		return nil, &domain.StorageError{Op: "create snapshot", Name: name, Err: err}
	}

	logger.InfoKV(ctx, "Snapshot created", "guid", snapshot.GUID)

	return snapshot, nil
}
