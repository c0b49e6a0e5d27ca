package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"
)

// partialSuffix marks a download in progress; such files are never taken as complete.
const partialSuffix = ".part"

// ProgressFunc returns a writer that observes the bytes of a download, or nil.
type ProgressFunc func(fileName string, size int64) io.Writer

// assetStore keeps the downloaded files of one release in its working directory.
type assetStore struct {
	// dir is the working directory, the mountpoint of the release dataset.
	dir string
	// remote is the mirror directory of the release.
	remote   string
	mirror   *Mirror
	progress ProgressFunc
}

// assetFileName returns "{asset}.txz".
func assetFileName(asset string) string {
	return asset + domain.AssetSuffix
}

// path returns the local location of a file in the working directory.
func (a *assetStore) path(fileName string) string {
	return filepath.Join(a.dir, fileName)
}

// assetPath returns the local location of an asset archive.
func (a *assetStore) assetPath(asset string) string {
	return a.path(assetFileName(asset))
}

// exists reports whether the file was downloaded completely.
func (a *assetStore) exists(fileName string) bool {
	info, err := os.Stat(a.path(fileName))

	return err == nil && info.Mode().IsRegular()
}

// download retrieves remote/fileName into the working directory unless it is already there.
func (a *assetStore) download(ctx context.Context, fileName string) error {
	destination := a.path(fileName)
	if a.exists(fileName) {
		logger.InfoKV(ctx, "File already exists, skipping download", "path", destination)
		return nil
	}

	source := a.remote + "/" + fileName
	logger.DebugKV(ctx, "Starting download", "url", source)

	body, size, err := a.mirror.Open(ctx, source)
	if err != nil {
		return err
	}

	defer func() {
		_ = body.Close()
	}()

	partial := destination + partialSuffix

	output, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", partial, err)
	}

	var sink io.Writer = output
	if a.progress != nil {
		if observer := a.progress(fileName, size); observer != nil {
			sink = io.MultiWriter(output, observer)
		}
	}

	if _, err = io.Copy(sink, body); err != nil {
		_ = output.Close()
		_ = os.Remove(partial)

		return &domain.NetworkError{URL: source, Err: err}
	}

	if err = output.Close(); err != nil {
		_ = os.Remove(partial)

		return fmt.Errorf("close %s: %w", partial, err)
	}

	if err = os.Rename(partial, destination); err != nil {
		return fmt.Errorf("rename %s: %w", partial, err)
	}

	logger.InfoKV(ctx, "File downloaded", "url", source, "path", destination)

	return nil
}

// cleanup removes the given files, tolerating files that are already gone.
func (a *assetStore) cleanup(ctx context.Context, fileNames ...string) error {
	var result *multierror.Error

	for _, fileName := range fileNames {
		for _, path := range []string{a.path(fileName), a.path(fileName) + partialSuffix} {
			err := os.Remove(path)
			if err == nil {
				logger.DebugKV(ctx, "Removed release file", "path", path)
				continue
			}

			if !errors.Is(err, os.ErrNotExist) {
				result = multierror.Append(result, err)
			}
		}
	}

	return result.ErrorOrNil()
}
