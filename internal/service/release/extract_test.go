package release

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/jail-release/internal/domain/release"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	archive := writeArchive(t,
		dir("."),
		dir("./etc"),
		file("./etc/motd", "welcome\n"),
		entry{name: "./etc/localtime", typeflag: tar.TypeSymlink, linkname: "/usr/share/zoneinfo/UTC"},
		entry{name: "./etc/motd.template", typeflag: tar.TypeLink, linkname: "./etc/motd"},
		entry{name: "./bin/sh", typeflag: tar.TypeReg, body: "#!/bin/sh\n", mode: 0o555},
	)

	root := filepath.Join(t.TempDir(), "root")
	require.NoError(t, Extract(context.Background(), testRelease, "base", archive, root))

	content, err := os.ReadFile(filepath.Join(root, "etc", "motd"))
	require.NoError(t, err)
	require.Equal(t, "welcome\n", string(content))

	target, err := os.Readlink(filepath.Join(root, "etc", "localtime"))
	require.NoError(t, err)
	require.Equal(t, "/usr/share/zoneinfo/UTC", target)

	linked, err := os.ReadFile(filepath.Join(root, "etc", "motd.template"))
	require.NoError(t, err)
	require.Equal(t, "welcome\n", string(linked))

	info, err := os.Stat(filepath.Join(root, "bin", "sh"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o555), info.Mode().Perm())
}

// TestExtract_RejectsUnsafeEntries never writes anything for a bad archive.
func TestExtract_RejectsUnsafeEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []entry
	}{
		{
			name:    "parent traversal",
			entries: []entry{file("./etc/motd", "ok"), file("../escape", "pwned")},
		},
		{
			name:    "nested traversal",
			entries: []entry{file("./etc/../../escape", "pwned")},
		},
		{
			name:    "missing relative prefix",
			entries: []entry{file("./etc/motd", "ok"), file("etc/passwd", "pwned")},
		},
		{
			name:    "absolute path",
			entries: []entry{file("/escape", "pwned")},
		},
		{
			name: "hard link outside root",
			entries: []entry{
				file("./etc/motd", "ok"),
				{name: "./etc/shadow", typeflag: tar.TypeLink, linkname: "../../etc/shadow"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			archive := writeArchive(t, tt.entries...)
			parent := t.TempDir()
			root := filepath.Join(parent, "root")

			err := Extract(context.Background(), testRelease, "base", archive, root)

			var unsafeErr *domain.UnsafeArchiveContentError
			require.ErrorAs(t, err, &unsafeErr)
			require.Equal(t, testRelease, unsafeErr.Release)
			require.Equal(t, "base", unsafeErr.Asset)
			require.NotEmpty(t, unsafeErr.Reason)

			require.NoFileExists(t, filepath.Join(parent, "escape"))
			require.NoDirExists(t, root)
		})
	}
}

// TestExtract_SymlinkedDirectoryStaysInsideRoot resolves writes below root.
func TestExtract_SymlinkedDirectoryStaysInsideRoot(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	outside := filepath.Join(parent, "outside")
	require.NoError(t, os.Mkdir(outside, 0o755))

	archive := writeArchive(t,
		entry{name: "./usr", typeflag: tar.TypeSymlink, linkname: outside},
		file("./usr/passwd", "inside"),
	)

	root := filepath.Join(parent, "root")
	require.NoError(t, Extract(context.Background(), testRelease, "base", archive, root))

	require.NoFileExists(t, filepath.Join(outside, "passwd"))
	require.FileExists(t, filepath.Join(root, outside, "passwd"))
}

func TestExtract_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	archive := writeArchive(t, file("./etc/motd", "welcome\n"))

	err := Extract(ctx, testRelease, "base", archive, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
}
