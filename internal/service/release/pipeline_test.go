package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/jail-release/internal/domain/event"
	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/storage"
)

type fakeUpdater struct {
	fetched  int
	applied  int
	changed  bool
	applyErr error
}

func (f *fakeUpdater) Fetch(_ context.Context, rootDir, _ string) error {
	if _, err := os.Stat(filepath.Join(rootDir, "etc")); err != nil {
		return err
	}

	f.fetched++

	return nil
}

func (f *fakeUpdater) Apply(context.Context, string, string) (bool, error) {
	f.applied++

	return f.changed, f.applyErr
}

func newTestRelease(t *testing.T, s *Service) *domain.Release {
	t.Helper()

	rel, err := s.NewRelease(testRelease, domain.WithAssets("base"))
	require.NoError(t, err)

	return rel
}

// TestFetch_FirstRunAndRerun covers a full fetch followed by a no-op one.
func TestFetch_FirstRunAndRerun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, releaseFiles(t))
	rel := newTestRelease(t, f.service)

	fetched, err := f.service.IsFetched(ctx, rel)
	require.NoError(t, err)
	require.False(t, fetched)

	events, err := f.service.Fetch(ctx, rel, FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{
		"PrepareStorage.begin", "PrepareStorage.end",
		"Download.begin", "Download.end",
		"Extract.begin", "Extract.end",
		"Configure.begin", "Configure.end",
		"CopyBase.begin", "CopyBase.end",
	}, event.Names(events))

	fetched, err = f.service.IsFetched(ctx, rel)
	require.NoError(t, err)
	require.True(t, fetched)

	dataset, err := f.driver.GetDataset(ctx, f.service.DatasetName(rel))
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(dataset.Mountpoint, "base.txz"))
	require.NoFileExists(t, filepath.Join(dataset.Mountpoint, "MANIFEST"))

	root, err := f.driver.GetDataset(ctx, f.service.RootDatasetName(rel))
	require.NoError(t, err)

	rcConf, err := os.ReadFile(filepath.Join(root.Mountpoint, "etc", "rc.conf"))
	require.NoError(t, err)
	require.Contains(t, string(rcConf), `sendmail_enable="NO"`)

	base, err := f.driver.GetDataset(ctx, f.service.BaseDatasetName(rel))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(base.Mountpoint, "bin", "sh"))

	events, err = f.service.Fetch(ctx, rel, FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{
		"Download.skip",
		"Configure.begin", "Configure.skip",
		"CopyBase.skip",
	}, event.Names(events))
	require.Equal(t, skipReleaseUnchanged, events[len(events)-1].Message)
	require.Equal(t, 1, f.mirror.count("/"+testRelease+"/base.txz"))
	require.Equal(t, 1, f.syncer.count())
}

// TestFetch_IntegrityMismatch stops before extraction and keeps the asset.
func TestFetch_IntegrityMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	files := releaseFiles(t)
	files["/"+testRelease+"/MANIFEST"] = []byte("SHA256 (base.txz) = " + sha256Hex([]byte("other")) + "\n")

	f := newFixture(t, files)
	rel := newTestRelease(t, f.service)

	events, err := f.service.Fetch(ctx, rel, FetchOptions{})
	require.Error(t, err)
	require.Equal(t, []string{
		"PrepareStorage.begin", "PrepareStorage.end",
		"Download.begin", "Download.end",
		"Extract.begin", "Extract.fail",
	}, event.Names(events))

	var integrityErr *domain.IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	require.Equal(t, sha256Hex([]byte("other")), integrityErr.Expected)
	require.Equal(t, sha256Hex(files["/"+testRelease+"/base.txz"]), integrityErr.Actual)
	require.ErrorIs(t, events[len(events)-1].Err, err)
	require.Contains(t, err.Error(), "Extract: ")

	dataset, err := f.driver.GetDataset(ctx, f.service.DatasetName(rel))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dataset.Mountpoint, "base.txz"))

	fetched, err := f.service.IsFetched(ctx, rel)
	require.NoError(t, err)
	require.False(t, fetched)
}

// TestFetch_ManifestMissing fails at verification when the mirror has no manifest.
func TestFetch_ManifestMissing(t *testing.T) {
	t.Parallel()

	files := releaseFiles(t)
	delete(files, "/"+testRelease+"/MANIFEST")

	f := newFixture(t, files)
	rel := newTestRelease(t, f.service)

	_, err := f.service.Fetch(context.Background(), rel, FetchOptions{})
	require.Error(t, err)

	var networkErr *domain.NetworkError
	require.ErrorAs(t, err, &networkErr)
}

// TestFetch_WithoutHashCheck extracts without a manifest.
func TestFetch_WithoutHashCheck(t *testing.T) {
	t.Parallel()

	files := releaseFiles(t)
	delete(files, "/"+testRelease+"/MANIFEST")

	f := newFixture(t, files, WithHashCheck(false))
	rel := newTestRelease(t, f.service)

	_, err := f.service.Fetch(context.Background(), rel, FetchOptions{})
	require.NoError(t, err)
	require.Zero(t, f.mirror.count("/"+testRelease+"/MANIFEST"))
}

// TestFetch_DownloadFailure reports a network error on the Download stage.
func TestFetch_DownloadFailure(t *testing.T) {
	t.Parallel()

	files := releaseFiles(t)
	delete(files, "/"+testRelease+"/base.txz")

	f := newFixture(t, files)
	rel := newTestRelease(t, f.service)

	events, err := f.service.Fetch(context.Background(), rel, FetchOptions{})
	require.Error(t, err)
	require.Equal(t, "Download.fail", events[len(events)-1].Name())

	var networkErr *domain.NetworkError
	require.ErrorAs(t, err, &networkErr)
	require.ErrorIs(t, err, errBadHTTPStatus)
}

// TestFetch_Updates runs the optional update stages in order.
func TestFetch_Updates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	updater := &fakeUpdater{changed: true}
	f := newFixture(t, releaseFiles(t), WithUpdater(updater))
	rel := newTestRelease(t, f.service)

	_, err := f.service.Fetch(ctx, rel, FetchOptions{})
	require.NoError(t, err)

	events, err := f.service.Fetch(ctx, rel, FetchOptions{FetchUpdates: true, Update: true})
	require.NoError(t, err)
	require.Equal(t, []string{
		"Download.skip",
		"Configure.begin", "Configure.skip",
		"FetchUpdates.begin", "FetchUpdates.end",
		"ApplyUpdates.begin", "ApplyUpdates.end",
		"CopyBase.begin", "CopyBase.end",
	}, event.Names(events))
	require.Equal(t, 1, updater.fetched)
	require.Equal(t, 1, updater.applied)
}

// TestFetch_UpdateFailureStopsPipeline does not copy the base after a failed
// update but still removes the downloaded files.
func TestFetch_UpdateFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	updater := &fakeUpdater{applyErr: errors.New("install failed")}
	f := newFixture(t, releaseFiles(t), WithUpdater(updater))
	rel := newTestRelease(t, f.service)

	events, err := f.service.Fetch(ctx, rel, FetchOptions{Update: true})
	require.ErrorIs(t, err, updater.applyErr)
	require.Equal(t, "ApplyUpdates.fail", events[len(events)-1].Name())
	require.NotContains(t, event.Names(events), "CopyBase.begin")

	dataset, err := f.driver.GetDataset(ctx, f.service.DatasetName(rel))
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(dataset.Mountpoint, "base.txz"))
	require.NoFileExists(t, filepath.Join(dataset.Mountpoint, "MANIFEST"))
}

// TestFetch_NoUpdater fails the requested update stage.
func TestFetch_NoUpdater(t *testing.T) {
	t.Parallel()

	f := newFixture(t, releaseFiles(t))
	rel := newTestRelease(t, f.service)

	events, err := f.service.Fetch(context.Background(), rel, FetchOptions{FetchUpdates: true})
	require.ErrorIs(t, err, errNoUpdater)
	require.Equal(t, "FetchUpdates.fail", events[len(events)-1].Name())
}

// TestFetchEvents_ConsumerStops runs nothing beyond the last consumed event.
func TestFetchEvents_ConsumerStops(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, releaseFiles(t))
	rel := newTestRelease(t, f.service)

	var seen []string
	for e, err := range f.service.FetchEvents(ctx, rel, FetchOptions{}) {
		require.NoError(t, err)

		seen = append(seen, e.Name())
		if e.Stage == event.Download {
			break
		}
	}

	require.Equal(t, []string{"PrepareStorage.begin", "PrepareStorage.end", "Download.begin"}, seen)
	require.Zero(t, f.mirror.count("/"+testRelease+"/base.txz"))

	_, err := f.driver.GetDataset(ctx, f.service.RootDatasetName(rel))
	require.NoError(t, err)

	fetched, err := f.service.IsFetched(ctx, rel)
	require.NoError(t, err)
	require.False(t, fetched)
}

// TestFetchEvents_SideEffectsBeforeTerminalEvent observes the root after Extract.end.
func TestFetchEvents_SideEffectsBeforeTerminalEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, releaseFiles(t))
	rel := newTestRelease(t, f.service)

	for e, err := range f.service.FetchEvents(ctx, rel, FetchOptions{}) {
		require.NoError(t, err)

		if e.Name() == "Extract.end" {
			fetched, err := f.service.IsFetched(ctx, rel)
			require.NoError(t, err)
			require.True(t, fetched)

			break
		}
	}
}

// TestFetch_IsFetchedFailure reports storage errors as a PrepareStorage failure.
func TestFetch_IsFetchedFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, releaseFiles(t))
	rel := newTestRelease(t, f.service)
	f.service.driver = failingDriver{Driver: f.driver}

	events, err := f.service.Fetch(context.Background(), rel, FetchOptions{})
	require.Error(t, err)
	require.Equal(t, []string{"PrepareStorage.fail"}, event.Names(events))

	var storageErr *domain.StorageError
	require.ErrorAs(t, err, &storageErr)
}

type failingDriver struct {
	storage.Driver
}

func (failingDriver) GetDataset(context.Context, string) (*storage.Dataset, error) {
	return nil, errors.New("pool is suspended")
}
