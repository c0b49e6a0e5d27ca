package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/jail-release/internal/domain/release"
)

// TestValidate checks defaults and the configuration errors raised before any I/O.
func TestValidate(t *testing.T) {
	t.Parallel()

	settings := new(Config)
	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultRootDataset, settings.RootDataset)
	require.Equal(t, DefaultDownloadTimeout, settings.DownloadTimeout)
	require.True(t, settings.ShouldCheckHashes())
	require.Equal(t, "zroot/iocage/releases", settings.ReleasesDataset())
	require.Equal(t, "zroot/iocage/base", settings.BaseDataset())

	var cfgErr *release.ConfigurationError

	settings = &Config{MirrorURL: "file:///srv/releases"}
	require.ErrorAs(t, Validate(settings), &cfgErr)
	require.Equal(t, "mirror url", cfgErr.Field)

	settings = &Config{Distribution: "Debian"}
	require.ErrorAs(t, Validate(settings), &cfgErr)

	settings = &Config{LogLevel: "loud"}
	require.ErrorAs(t, Validate(settings), &cfgErr)

	settings = &Config{MirrorURL: "ftp://ftp.freebsd.org/pub/FreeBSD/releases/amd64/", RootDataset: "/tank/jails/"}
	require.NoError(t, Validate(settings))
	require.Equal(t, "ftp://ftp.freebsd.org/pub/FreeBSD/releases/amd64", settings.MirrorURL)
	require.Equal(t, "tank/jails", settings.RootDataset)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	checkHashes := false
	settings := &Config{
		RootDataset:     "tank/iocage",
		Distribution:    "HardenedBSD",
		MirrorURL:       "https://mirror.local/releases",
		CheckHashes:     &checkHashes,
		DownloadTimeout: 5 * time.Minute,
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.RootDataset, loaded.RootDataset)
	require.Equal(t, settings.MirrorURL, loaded.MirrorURL)
	require.Equal(t, settings.Distribution, loaded.Distribution)
	require.False(t, loaded.ShouldCheckHashes())
	require.Equal(t, 5*time.Minute, loaded.DownloadTimeout)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_MissingFile reports read failures.
func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestDefault returns a usable configuration without a file.
func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.Equal(t, DefaultRootDataset, cfg.RootDataset)
	require.True(t, cfg.ShouldCheckHashes())
}
