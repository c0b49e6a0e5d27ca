package release

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"

	// Register SHA-256 for go-digest.
	_ "crypto/sha256"
)

const (
	// sha256HexLength identifies digest tokens in a manifest line.
	sha256HexLength = 64
	// hashBlockSize is the read size used while hashing assets.
	hashBlockSize = 64 * 1024
)

// ParseManifest reads a checksum manifest into an asset to digest map.
// A line contributes when it holds both a 64 character token and a token
// ending in the archive suffix; parentheses around tokens are ignored, so
// BSD style "SHA256 (base.txz) = ..." lines and "digest  base.txz" lines both
// work. Any other line is skipped.
func ParseManifest(r io.Reader) (map[string]string, error) {
	hashes := make(map[string]string)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read manifest: %w", err)
		}

		if asset, fingerprint := parseManifestLine(line); asset != "" && fingerprint != "" {
			hashes[asset] = fingerprint
		}

		if err != nil {
			return hashes, nil
		}
	}
}

func parseManifestLine(line string) (asset, fingerprint string) {
	for _, token := range strings.Fields(line) {
		token = strings.Trim(token, "()")

		switch {
		case len(token) == sha256HexLength:
			fingerprint = token
		case strings.HasSuffix(token, domain.AssetSuffix):
			asset = strings.TrimSuffix(token, domain.AssetSuffix)
		}
	}

	return asset, fingerprint
}

// FileDigest computes the SHA-256 hex digest of a file in fixed-size blocks.
func FileDigest(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	digester := digest.SHA256.Digester()
	if _, err = io.CopyBuffer(digester.Hash(), file, make([]byte, hashBlockSize)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return digester.Digest().Encoded(), nil
}

// VerifyAsset compares the digest of the file at path with the expected one.
// The file is left in place on mismatch.
func VerifyAsset(ctx context.Context, releaseName, asset, path, expected string) error {
	actual, err := FileDigest(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, expected) {
		logger.WarnKV(ctx, "Asset has an invalid checksum",
			"asset", assetFileName(asset),
			"actual", actual,
			"expected", expected,
		)

		return &domain.IntegrityError{
			Release:  releaseName,
			Asset:    asset,
			Expected: expected,
			Actual:   actual,
		}
	}

	logger.DebugKV(ctx, "Asset has a valid checksum", "asset", assetFileName(asset), "digest", expected)

	return nil
}

// fetchManifest downloads the checksum manifest unless it is already present.
func (s *Service) fetchManifest(ctx context.Context, store *assetStore) error {
	return store.download(ctx, s.host.Distribution.HashFile)
}

// hashes returns the memoized checksum map, downloading the manifest when needed.
func (s *Service) hashes(ctx context.Context, rel *domain.Release, store *assetStore) (map[string]string, error) {
	if hashes, ok := rel.Hashes(); ok {
		return hashes, nil
	}

	hashFile := s.host.Distribution.HashFile
	if !store.exists(hashFile) {
		logger.Debug(ctx, "Hashes have not yet been downloaded")

		if err := s.fetchManifest(ctx, store); err != nil {
			return nil, err
		}
	}

	file, err := os.Open(store.path(hashFile))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hashes, err := ParseManifest(file)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Hashes read", "count", len(hashes), "path", store.path(hashFile))
	rel.SetHashes(hashes)

	return hashes, nil
}

// verifyAsset checks one downloaded asset against the manifest.
func (s *Service) verifyAsset(ctx context.Context, rel *domain.Release, store *assetStore, asset string) error {
	hashes, err := s.hashes(ctx, rel, store)
	if err != nil {
		return err
	}

	expected, ok := hashes[asset]
	if !ok {
		return fmt.Errorf("%s: %w", assetFileName(asset), domain.ErrNoChecksum)
	}

	return VerifyAsset(ctx, rel.Name(), asset, store.assetPath(asset), expected)
}

// isManifestMissing reports whether err means the mirror has no manifest.
func isManifestMissing(err error) bool {
	return errors.Is(err, errBadHTTPStatus)
}
