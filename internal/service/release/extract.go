package release

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/ulikunitz/xz"

	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"
)

const (
	// archiveRootEntry is the entry of the archive root itself, skipped.
	archiveRootEntry = "."
	// relativePrefix must start every other entry name.
	relativePrefix = "./"
	// parentSegment is the traversal segment rejected anywhere in a path.
	parentSegment = ".."

	defaultDirMode = 0o755
)

// entryViolation returns why an archive path is unsafe, or an empty string.
func entryViolation(name string) string {
	if !strings.HasPrefix(name, relativePrefix) {
		return "name does not start with " + relativePrefix
	}

	if slices.Contains(strings.Split(name, "/"), parentSegment) {
		return "name contains a parent directory reference"
	}

	return ""
}

// openArchive returns a tar stream over an xz compressed file.
func openArchive(archivePath string) (*tar.Reader, io.Closer, error) {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return nil, nil, err
	}

	decompressed, err := xz.NewReader(bufio.NewReader(file))
	if err != nil {
		_ = file.Close()

		return nil, nil, fmt.Errorf("open %s: %w", archivePath, err)
	}

	return tar.NewReader(decompressed), file, nil
}

// ValidateArchive checks every entry of the archive before anything is written.
// Hard link targets follow the same rules as entry names.
func ValidateArchive(releaseName, asset, archivePath string) error {
	reader, closer, err := openArchive(archivePath)
	if err != nil {
		return err
	}

	defer func() {
		_ = closer.Close()
	}()

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read %s: %w", archivePath, err)
		}

		if header.Name == archiveRootEntry {
			continue
		}

		reason := entryViolation(header.Name)
		if reason == "" && header.Typeflag == tar.TypeLink {
			if linkReason := entryViolation(header.Linkname); linkReason != "" {
				reason = "link target " + linkReason
			}
		}

		if reason != "" {
			return &domain.UnsafeArchiveContentError{
				Release: releaseName,
				Asset:   asset,
				Entry:   header.Name,
				Reason:  reason,
			}
		}
	}
}

// Extract validates the archive and unpacks it below targetRoot.
func Extract(ctx context.Context, releaseName, asset, archivePath, targetRoot string) error {
	if err := ValidateArchive(releaseName, asset, archivePath); err != nil {
		return err
	}

	return unpack(ctx, archivePath, targetRoot)
}

// scopedPath resolves the parent of name inside root and keeps the last
// element unresolved, so links are created rather than followed.
func scopedPath(root, name string) (string, error) {
	clean := path.Clean("/" + name)

	parent, err := securejoin.SecureJoin(root, path.Dir(clean))
	if err != nil {
		return "", err
	}

	return filepath.Join(parent, path.Base(clean)), nil
}

func unpack(ctx context.Context, archivePath, targetRoot string) error {
	reader, closer, err := openArchive(archivePath)
	if err != nil {
		return err
	}

	defer func() {
		_ = closer.Close()
	}()

	if err = os.MkdirAll(targetRoot, defaultDirMode); err != nil {
		return err
	}

	var directories []*tar.Header

	for {
		if err = ctx.Err(); err != nil {
			return err
		}

		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read %s: %w", archivePath, err)
		}

		if header.Name == archiveRootEntry {
			continue
		}

		target, err := scopedPath(targetRoot, header.Name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", header.Name, err)
		}

		if err = os.MkdirAll(filepath.Dir(target), defaultDirMode); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, defaultDirMode); err != nil {
				return err
			}

			directories = append(directories, header)
		case tar.TypeReg:
			if err = writeFile(target, header, reader); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err = replace(target, func() error { return os.Symlink(header.Linkname, target) }); err != nil {
				return err
			}
		case tar.TypeLink:
			source, err := securejoin.SecureJoin(targetRoot, header.Linkname)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", header.Linkname, err)
			}

			if err = replace(target, func() error { return os.Link(source, target) }); err != nil {
				return err
			}
		default:
			logger.DebugKV(ctx, "Skipping unsupported archive entry",
				"entry", header.Name,
				"type", string(header.Typeflag),
			)

			continue
		}

		if header.Typeflag != tar.TypeDir {
			if err = applyOwnership(target, header); err != nil {
				return err
			}
		}
	}

	// Parents are finished after their children so their times stick.
	for _, header := range slices.Backward(directories) {
		target, err := scopedPath(targetRoot, header.Name)
		if err != nil {
			return err
		}

		if err = applyOwnership(target, header); err != nil {
			return err
		}

		if err = os.Chmod(target, header.FileInfo().Mode()); err != nil {
			return err
		}

		if err = os.Chtimes(target, header.AccessTime, header.ModTime); err != nil {
			return err
		}
	}

	return nil
}

// replace removes whatever is at target before create runs.
func replace(target string, create func() error) error {
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return create()
}

func writeFile(target string, header *tar.Header, content io.Reader) error {
	return replace(target, func() error {
		file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}

		if _, err = io.Copy(file, content); err != nil {
			_ = file.Close()

			return err
		}

		if err = file.Close(); err != nil {
			return err
		}

		if err = os.Chmod(target, header.FileInfo().Mode()); err != nil {
			return err
		}

		return os.Chtimes(target, header.AccessTime, header.ModTime)
	})
}

// applyOwnership restores the archived owner when running as root.
func applyOwnership(target string, header *tar.Header) error {
	if os.Geteuid() != 0 {
		return nil
	}

	return os.Lchown(target, header.Uid, header.Gid)
}

// extractAssets unpacks every asset of the release into rootDir, verifying first when enabled.
func (s *Service) extractAssets(ctx context.Context, rel *domain.Release, store *assetStore, rootDir string) error {
	for _, asset := range rel.Assets() {
		if s.checkHashes {
			if err := s.verifyAsset(ctx, rel, store, asset); err != nil {
				return err
			}
		}

		logger.InfoKV(ctx, "Extracting asset", "asset", assetFileName(asset), "root", rootDir)

		if err := Extract(ctx, rel.Name(), asset, store.assetPath(asset), rootDir); err != nil {
			return err
		}
	}

	return nil
}
