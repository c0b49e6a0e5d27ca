package release

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/oshokin/jail-release/internal/domain/event"
	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/storage"
)

const (
	skipAlreadyDownloaded = "already downloaded"
	skipDefaultsApplied   = "defaults already applied"
	skipReleaseUnchanged  = "release unchanged"
)

// keepFilesOn lists the stages whose failure leaves the downloaded files in place.
//
//nolint:gochecknoglobals // Read-only lookup table.
var keepFilesOn = []event.Stage{event.PrepareStorage, event.Download, event.Extract}

// FetchOptions selects the optional stages of a fetch.
type FetchOptions struct {
	// FetchUpdates downloads available patches after configuration.
	FetchUpdates bool
	// Update installs fetched patches.
	Update bool
	// Progress observes asset downloads when set.
	Progress ProgressFunc
}

// FetchEvents returns the lazy event sequence of a fetch. Every stage does its
// work before its terminal event is yielded, and nothing runs after the
// consumer stops. A failing stage yields its fail event together with the
// error "{stage}: {cause}" and ends the sequence.
func (s *Service) FetchEvents(ctx context.Context, rel *domain.Release, opts FetchOptions) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		run := &fetchRun{
			service: s,
			rel:     rel,
			opts:    opts,
			yield:   yield,
		}

		run.execute(logger.WithKV(logger.WithName(ctx, "release"), "release", rel.Name()))
	}
}

// Fetch drains FetchEvents and returns every event emitted, up to and
// including the failing one.
func (s *Service) Fetch(ctx context.Context, rel *domain.Release, opts FetchOptions) ([]event.Event, error) {
	var events []event.Event

	for e, err := range s.FetchEvents(ctx, rel, opts) {
		events = append(events, e)
		if err != nil {
			return events, err
		}
	}

	return events, nil
}

// stageWork performs a stage and returns a skip message when nothing had to be done.
type stageWork func(ctx context.Context) (string, error)

// fetchRun holds the state of one pass over the fetch stages.
type fetchRun struct {
	service *Service
	rel     *domain.Release
	opts    FetchOptions
	yield   func(event.Event, error) bool

	store   *assetStore
	root    *storage.Dataset
	changed bool
}

func (r *fetchRun) execute(ctx context.Context) {
	fetched, err := r.service.IsFetched(ctx, r.rel)
	if err != nil {
		r.fail(ctx, event.PrepareStorage, err)
		return
	}

	if fetched {
		logger.Info(ctx, "Release is already fetched")

		if _, err = r.prepareStorage(ctx); err != nil {
			r.fail(ctx, event.PrepareStorage, err)
			return
		}

		if !r.skip(event.Download, skipAlreadyDownloaded) {
			return
		}
	} else {
		for _, step := range []struct {
			stage event.Stage
			work  stageWork
		}{
			{event.PrepareStorage, r.prepareStorage},
			{event.Download, r.download},
			{event.Extract, r.extract},
		} {
			if !r.stage(ctx, step.stage, step.work) {
				return
			}
		}
	}

	if !r.stage(ctx, event.Configure, r.configure) {
		return
	}

	if r.opts.FetchUpdates && !r.stage(ctx, event.FetchUpdates, r.fetchUpdates) {
		return
	}

	if r.opts.Update && !r.stage(ctx, event.ApplyUpdates, r.applyUpdates) {
		return
	}

	if r.changed {
		if !r.stage(ctx, event.CopyBase, r.copyBase) {
			return
		}
	} else if !r.skip(event.CopyBase, skipReleaseUnchanged) {
		return
	}

	r.cleanup(ctx)
}

// stage emits begin, runs work and emits its terminal event. It returns false
// when the pipeline has to stop.
func (r *fetchRun) stage(ctx context.Context, stage event.Stage, work stageWork) bool {
	tracker := event.NewTracker(stage, r.rel.Name())
	if !r.yield(tracker.Begin(), nil) {
		return false
	}

	message, err := work(logger.WithKV(ctx, "stage", stage))
	if err != nil {
		r.fail(ctx, stage, err)
		return false
	}

	if message != "" {
		logger.InfoKV(ctx, "Stage skipped", "stage", stage, "reason", message)

		return r.yield(tracker.Skip(message), nil)
	}

	return r.yield(tracker.End(), nil)
}

// skip emits a standalone skip for a stage that does not run.
func (r *fetchRun) skip(stage event.Stage, message string) bool {
	return r.yield(event.NewTracker(stage, r.rel.Name()).Skip(message), nil)
}

// fail emits the fail event of a stage with the wrapped error. Files are kept
// when the failure is in fetching or unpacking them.
func (r *fetchRun) fail(ctx context.Context, stage event.Stage, err error) {
	if r.store != nil && !slices.Contains(keepFilesOn, stage) {
		r.cleanup(ctx)
	}

	err = fmt.Errorf("%s: %w", stage, err)
	r.yield(event.NewTracker(stage, r.rel.Name()).Fail(err), err)
}

func (r *fetchRun) prepareStorage(ctx context.Context) (string, error) {
	dataset, err := r.service.mountedDataset(ctx, r.service.DatasetName(r.rel))
	if err != nil {
		return "", err
	}

	root, err := r.service.mountedDataset(ctx, r.service.RootDatasetName(r.rel))
	if err != nil {
		return "", err
	}

	r.root = root
	r.store = &assetStore{
		dir:      dataset.Mountpoint,
		remote:   r.service.RemoteURL(r.rel),
		mirror:   r.service.mirror,
		progress: r.opts.Progress,
	}

	return "", nil
}

func (r *fetchRun) download(ctx context.Context) (string, error) {
	if r.service.checkHashes {
		if err := r.service.fetchManifest(ctx, r.store); err != nil {
			if isManifestMissing(err) {
				logger.InfoKV(ctx, "Mirror has no checksum manifest", "error", err)
			} else {
				logger.WarnKV(ctx, "Checksum manifest download failed", "error", err)
			}
		}
	}

	for _, asset := range r.rel.Assets() {
		if err := r.store.download(ctx, assetFileName(asset)); err != nil {
			return "", err
		}
	}

	return "", nil
}

func (r *fetchRun) extract(ctx context.Context) (string, error) {
	if err := r.service.extractAssets(ctx, r.rel, r.store, r.root.Mountpoint); err != nil {
		return "", err
	}

	r.changed = true

	return "", nil
}

func (r *fetchRun) configure(ctx context.Context) (string, error) {
	changed, err := r.service.configureRoot(ctx, r.root.Mountpoint)
	if err != nil {
		return "", err
	}

	if !changed {
		return skipDefaultsApplied, nil
	}

	r.changed = true

	return "", nil
}

func (r *fetchRun) fetchUpdates(ctx context.Context) (string, error) {
	if r.service.updater == nil {
		return "", errNoUpdater
	}

	return "", r.service.updater.Fetch(ctx, r.root.Mountpoint, r.rel.Name())
}

func (r *fetchRun) applyUpdates(ctx context.Context) (string, error) {
	if r.service.updater == nil {
		return "", errNoUpdater
	}

	changed, err := r.service.updater.Apply(ctx, r.root.Mountpoint, r.rel.Name())
	if err != nil {
		return "", err
	}

	r.changed = r.changed || changed

	return "", nil
}

func (r *fetchRun) copyBase(ctx context.Context) (string, error) {
	return "", r.service.UpdateBase(ctx, r.rel)
}

// cleanup removes the downloaded files when the run ends; failures are only logged.
func (r *fetchRun) cleanup(ctx context.Context) {
	files := make([]string, 0, len(r.rel.Assets())+1)
	for _, asset := range r.rel.Assets() {
		files = append(files, assetFileName(asset))
	}

	files = append(files, r.service.host.Distribution.HashFile)

	if err := r.store.cleanup(ctx, files...); err != nil {
		logger.WarnKV(ctx, "Release files cleanup failed", "error", err)
	}
}
