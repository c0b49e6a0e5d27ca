package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/oshokin/jail-release/internal/config"
	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/platform"
	"github.com/oshokin/jail-release/internal/repository/jailconf"
	"github.com/oshokin/jail-release/internal/storage"
)

// hbsdUpdateConf holds the update branch of a HardenedBSD release.
const hbsdUpdateConf = "etc/hbsd-update.conf"

var (
	errNoUpdater      = errors.New("no updater configured")
	errBranchNotFound = errors.New("update branch lookup failed")
)

// fetchedMarkers must all exist in a root dataset that finished extraction.
//
//nolint:gochecknoglobals // Read-only lookup table.
var fetchedMarkers = []string{"dev", "var", "etc"}

// Layout names the parent datasets of releases and their base copies.
type Layout struct {
	// ReleasesDataset holds one child dataset per release.
	ReleasesDataset string
	// BaseDataset holds the deduplicated base copies.
	BaseDataset string
}

// Defaults are the configuration tables applied during the Configure stage.
type Defaults struct {
	RCConf     []jailconf.Setting
	SysctlConf []jailconf.Setting
}

// DefaultDefaults returns the stock configuration tables.
func DefaultDefaults() Defaults {
	return Defaults{
		RCConf:     config.DefaultRCConf(),
		SysctlConf: config.DefaultSysctlConf(),
	}
}

// Updater patches an extracted release root.
type Updater interface {
	// Fetch downloads available patches.
	Fetch(ctx context.Context, rootDir, releaseName string) error
	// Apply installs fetched patches and reports whether anything changed.
	Apply(ctx context.Context, rootDir, releaseName string) (bool, error)
}

// Service runs the release lifecycle operations against a storage driver.
type Service struct {
	driver      storage.Driver
	host        *platform.Host
	layout      Layout
	mirror      *Mirror
	syncer      Syncer
	updater     Updater
	defaults    Defaults
	checkHashes bool
}

// Option customizes a Service.
type Option func(*Service)

// WithMirror sets the mirror client.
func WithMirror(mirror *Mirror) Option {
	return func(s *Service) {
		s.mirror = mirror
	}
}

// WithSyncer sets the base dataset synchronizer.
func WithSyncer(syncer Syncer) Option {
	return func(s *Service) {
		s.syncer = syncer
	}
}

// WithUpdater sets the collaborator used by the update stages.
func WithUpdater(updater Updater) Option {
	return func(s *Service) {
		s.updater = updater
	}
}

// WithDefaults replaces the configuration tables.
func WithDefaults(defaults Defaults) Option {
	return func(s *Service) {
		s.defaults = defaults
	}
}

// WithHashCheck toggles asset verification.
func WithHashCheck(enabled bool) Option {
	return func(s *Service) {
		s.checkHashes = enabled
	}
}

// New returns a Service. Without options it uses a default mirror client,
// rsync for base synchronization, the stock defaults and verifies hashes.
func New(driver storage.Driver, host *platform.Host, layout Layout, opts ...Option) *Service {
	s := &Service{
		driver:      driver,
		host:        host,
		layout:      layout,
		defaults:    DefaultDefaults(),
		checkHashes: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.mirror == nil {
		s.mirror = NewMirror(0)
	}

	if s.syncer == nil {
		s.syncer = NewRsyncSyncer(nil, "")
	}

	return s
}

// NewRelease builds a release with the asset set of the host distribution.
func (s *Service) NewRelease(name string, opts ...domain.Option) (*domain.Release, error) {
	if !s.host.Distribution.ShipsLib32() {
		opts = append([]domain.Option{domain.WithoutLib32()}, opts...)
	}

	return domain.New(name, opts...)
}

// Host returns the host the service manages releases for.
func (s *Service) Host() *platform.Host {
	return s.host
}

// DatasetName returns the release's working dataset.
func (s *Service) DatasetName(rel *domain.Release) string {
	return storage.Join(s.layout.ReleasesDataset, rel.Name())
}

// RootDatasetName returns the dataset the release is extracted into.
func (s *Service) RootDatasetName(rel *domain.Release) string {
	return storage.Join(s.DatasetName(rel), "root")
}

// BaseDatasetName returns the base copy of the release.
func (s *Service) BaseDatasetName(rel *domain.Release) string {
	return storage.Join(s.layout.BaseDataset, rel.Name(), "root")
}

// RemoteURL returns the mirror directory of the release.
func (s *Service) RemoteURL(rel *domain.Release) string {
	return rel.MirrorURL(s.host.Distribution.MirrorURL) + "/" + s.host.RealName(rel.Name())
}

// IsNewerThanHost reports whether the release is newer than the host release.
func (s *Service) IsNewerThanHost(rel *domain.Release) bool {
	return domain.IsNewerThanHost(rel.Name(), s.host.ReleaseVersion)
}

// IsFetched reports whether the root dataset exists and looks extracted.
// It only checks for the dev, var and etc directories.
func (s *Service) IsFetched(ctx context.Context, rel *domain.Release) (bool, error) {
	root, err := s.driver.GetDataset(ctx, s.RootDatasetName(rel))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}

		return false, &domain.StorageError{Op: "get dataset", Name: s.RootDatasetName(rel), Err: err}
	}

	if root.Mountpoint == "" || !root.Mounted {
		return false, nil
	}

	entries, err := os.ReadDir(root.Mountpoint)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("list %s: %w", root.Mountpoint, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	for _, marker := range fetchedMarkers {
		if !slices.Contains(names, marker) {
			return false, nil
		}
	}

	return true, nil
}

// Available probes the mirror for the release directory.
func (s *Service) Available(ctx context.Context, rel *domain.Release) (bool, error) {
	return s.mirror.Probe(ctx, s.RemoteURL(rel))
}

// Pool returns the pool of the root dataset, falling back to the releases dataset pool.
func (s *Service) Pool(ctx context.Context, rel *domain.Release) string {
	root, err := s.driver.GetDataset(ctx, s.RootDatasetName(rel))
	if err == nil {
		return root.Pool()
	}

	return storage.PoolOf(s.layout.ReleasesDataset)
}

// UpdateBranch returns the HardenedBSD update branch recorded in the release root.
func (s *Service) UpdateBranch(ctx context.Context, rel *domain.Release) (string, error) {
	if branch, ok := rel.Branch(); ok {
		return branch, nil
	}

	root, err := s.requireFetched(ctx, rel)
	if err != nil {
		return "", err
	}

	path := filepath.Join(root.Mountpoint, filepath.FromSlash(hbsdUpdateConf))
	if _, err = os.Stat(path); err != nil {
		return "", fmt.Errorf("%s: %s not found: %w", rel.Name(), path, errBranchNotFound)
	}

	conf, err := jailconf.Load(path, jailconf.RCConf)
	if err != nil {
		return "", err
	}

	branch, ok := conf.Get("branch")
	if !ok || branch == "" {
		return "", fmt.Errorf("%s: no branch in %s: %w", rel.Name(), path, errBranchNotFound)
	}

	rel.SetBranch(branch)

	return branch, nil
}

// Destroy recursively deletes the release dataset.
func (s *Service) Destroy(ctx context.Context, rel *domain.Release) error {
	name := s.DatasetName(rel)
	if err := s.driver.DeleteDatasetRecursive(ctx, name); err != nil {
		return &domain.StorageError{Op: "destroy dataset", Name: name, Err: err}
	}

	return nil
}

// requireFetched returns the root dataset or a PreconditionError.
func (s *Service) requireFetched(ctx context.Context, rel *domain.Release) (*storage.Dataset, error) {
	fetched, err := s.IsFetched(ctx, rel)
	if err != nil {
		return nil, err
	}

	if !fetched {
		return nil, &domain.PreconditionError{Release: rel.Name(), Err: domain.ErrNotFetched}
	}

	name := s.RootDatasetName(rel)

	root, err := s.driver.GetDataset(ctx, name)
	if err != nil {
		return nil, &domain.StorageError{Op: "get dataset", Name: name, Err: err}
	}

	return root, nil
}
