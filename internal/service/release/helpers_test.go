package release

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/oshokin/jail-release/internal/platform"
	"github.com/oshokin/jail-release/internal/storage/storagetest"
)

const (
	testRelease     = "13.2-RELEASE"
	testHostRelease = "13.1-RELEASE"
	testRoot        = "zroot/iocage"
)

// entry is one member of a test archive.
type entry struct {
	name     string
	typeflag byte
	body     string
	linkname string
	mode     int64
}

func dir(name string) entry {
	return entry{name: name, typeflag: tar.TypeDir, mode: 0o755}
}

func file(name, body string) entry {
	return entry{name: name, typeflag: tar.TypeReg, body: body, mode: 0o644}
}

// buildArchive returns an xz compressed tarball of entries.
func buildArchive(t *testing.T, entries ...entry) []byte {
	t.Helper()

	var buf bytes.Buffer

	compressed, err := xz.NewWriter(&buf)
	require.NoError(t, err)

	archive := tar.NewWriter(compressed)
	for _, e := range entries {
		header := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
			Mode:     e.mode,
			Size:     int64(len(e.body)),
			ModTime:  time.Unix(1700000000, 0),
		}

		if e.typeflag != tar.TypeReg {
			header.Size = 0
		}

		require.NoError(t, archive.WriteHeader(header))

		if e.typeflag == tar.TypeReg {
			_, err = archive.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}

	require.NoError(t, archive.Close())
	require.NoError(t, compressed.Close())

	return buf.Bytes()
}

// writeArchive stores an archive on disk and returns its path.
func writeArchive(t *testing.T, entries ...entry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "base.txz")
	require.NoError(t, os.WriteFile(path, buildArchive(t, entries...), 0o600))

	return path
}

// releaseArchive is a minimal extracted release.
func releaseArchive(t *testing.T) []byte {
	t.Helper()

	return buildArchive(t,
		dir("."),
		dir("./dev"),
		dir("./etc"),
		dir("./var"),
		dir("./bin"),
		file("./bin/sh", "#!/bin/sh\n"),
		file("./etc/motd", "welcome\n"),
	)
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}

// mirrorServer serves files under /{release}/ and counts requests per path.
type mirrorServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	requests map[string]int
}

func newMirrorServer(t *testing.T, files map[string][]byte) *mirrorServer {
	t.Helper()

	m := &mirrorServer{files: files, requests: make(map[string]int)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		content, ok := m.files[r.URL.Path]
		m.mu.Unlock()

		if r.URL.Path == "/"+testRelease && r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}

		if !ok {
			http.NotFound(w, r)
			return
		}

		_, _ = w.Write(content)
	}))

	t.Cleanup(m.Close)

	return m
}

func (m *mirrorServer) count(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.requests[path]
}

func testHost(mirrorURL string) *platform.Host {
	return &platform.Host{
		Distribution: platform.Distribution{
			Name:       platform.FreeBSD,
			MirrorURL:  mirrorURL,
			HashFile:   "MANIFEST",
			UpdateTool: "freebsd-update",
		},
		Processor:      "amd64",
		ReleaseVersion: testHostRelease,
	}
}

func testLayout() Layout {
	return Layout{
		ReleasesDataset: testRoot + "/releases",
		BaseDataset:     testRoot + "/base",
	}
}

// copySyncer mirrors directories with plain Go file copies.
type copySyncer struct {
	mu    sync.Mutex
	calls int
}

func (c *copySyncer) Sync(_ context.Context, source, destination string) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if err := os.RemoveAll(destination); err != nil {
		return err
	}

	return os.CopyFS(destination, os.DirFS(source))
}

func (c *copySyncer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

// fixture wires a Service to an in-memory driver and a test mirror.
type fixture struct {
	service *Service
	driver  *storagetest.Driver
	mirror  *mirrorServer
	syncer  *copySyncer
}

func newFixture(t *testing.T, files map[string][]byte, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		driver: storagetest.New(t.TempDir()),
		mirror: newMirrorServer(t, files),
		syncer: &copySyncer{},
	}

	opts = append([]Option{WithSyncer(f.syncer), WithMirror(NewMirror(time.Minute))}, opts...)
	f.service = New(f.driver, testHost(f.mirror.URL), testLayout(), opts...)

	return f
}

// releaseFiles returns a mirror with a valid base archive and manifest.
func releaseFiles(t *testing.T) map[string][]byte {
	t.Helper()

	archive := releaseArchive(t)
	manifest := "base.txz\t" + sha256Hex(archive) + "\t1234\tbase\t\"Base system\"\ton\n"

	return map[string][]byte{
		"/" + testRelease + "/base.txz": archive,
		"/" + testRelease + "/MANIFEST": []byte(manifest),
	}
}
