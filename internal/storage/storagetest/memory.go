// Package storagetest provides an in-memory storage.Driver whose datasets are
// backed by real directories, for tests of the release services.
package storagetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/jail-release/internal/storage"
)

// Driver keeps datasets and snapshots in memory and mounts datasets below Root.
type Driver struct {
	// Root is the directory dataset mountpoints are created under.
	Root string

	// SnapshotLookupErr, when set, is returned by GetSnapshot.
	SnapshotLookupErr error

	mu        sync.Mutex
	datasets  map[string]*storage.Dataset
	snapshots map[string]*storage.Snapshot
	nextGUID  int
}

// New returns a Driver mounting datasets under root.
func New(root string) *Driver {
	return &Driver{
		Root:      root,
		datasets:  make(map[string]*storage.Dataset),
		snapshots: make(map[string]*storage.Snapshot),
	}
}

// GetDataset returns a copy of the dataset.
func (d *Driver) GetDataset(_ context.Context, name string) (*storage.Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dataset, ok := d.datasets[name]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", name, storage.ErrNotFound)
	}

	cloned := *dataset

	return &cloned, nil
}

// GetOrCreateDataset creates the dataset and missing parents, mounted.
func (d *Driver) GetOrCreateDataset(ctx context.Context, name string) (*storage.Dataset, error) {
	d.mu.Lock()

	parts := strings.Split(name, "/")
	for i := range parts {
		current := strings.Join(parts[:i+1], "/")
		if _, ok := d.datasets[current]; ok {
			continue
		}

		mountpoint := d.mountpointOf(current)
		if err := os.MkdirAll(mountpoint, 0o755); err != nil {
			d.mu.Unlock()

			return nil, err
		}

		d.datasets[current] = &storage.Dataset{
			Name:       current,
			Mountpoint: mountpoint,
			Mounted:    true,
		}
	}

	d.mu.Unlock()

	return d.GetDataset(ctx, name)
}

// Unmount marks a dataset as unmounted.
func (d *Driver) Unmount(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dataset, ok := d.datasets[name]; ok {
		dataset.Mounted = false
	}
}

// Mount marks the dataset as mounted.
func (d *Driver) Mount(ctx context.Context, name string) (*storage.Dataset, error) {
	d.mu.Lock()

	dataset, ok := d.datasets[name]
	if !ok {
		d.mu.Unlock()

		return nil, fmt.Errorf("dataset %s: %w", name, storage.ErrNotFound)
	}

	dataset.Mounted = true
	d.mu.Unlock()

	return d.GetDataset(ctx, name)
}

// DeleteDatasetRecursive removes the dataset, its children, their snapshots and directories.
func (d *Driver) DeleteDatasetRecursive(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.datasets[name]; !ok {
		return fmt.Errorf("dataset %s: %w", name, storage.ErrNotFound)
	}

	for existing := range d.datasets {
		if existing == name || strings.HasPrefix(existing, name+"/") {
			delete(d.datasets, existing)
		}
	}

	for existing, snapshot := range d.snapshots {
		dataset := snapshot.Dataset()
		if dataset == name || strings.HasPrefix(dataset, name+"/") {
			delete(d.snapshots, existing)
		}
	}

	return os.RemoveAll(d.mountpointOf(name))
}

// GetSnapshot returns a copy of the snapshot.
func (d *Driver) GetSnapshot(_ context.Context, name string) (*storage.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.SnapshotLookupErr != nil {
		return nil, d.SnapshotLookupErr
	}

	snapshot, ok := d.snapshots[name]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", name, storage.ErrNotFound)
	}

	cloned := *snapshot

	return &cloned, nil
}

// CreateSnapshot records a snapshot with a fresh GUID.
func (d *Driver) CreateSnapshot(_ context.Context, name string) (*storage.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dataset, _, _ := strings.Cut(name, "@")
	if _, ok := d.datasets[dataset]; !ok {
		return nil, fmt.Errorf("dataset %s: %w", dataset, storage.ErrNotFound)
	}

	if _, ok := d.snapshots[name]; ok {
		return nil, fmt.Errorf("snapshot %s already exists", name)
	}

	d.nextGUID++
	snapshot := &storage.Snapshot{
		Name:      name,
		GUID:      strconv.Itoa(d.nextGUID),
		CreatedAt: time.Now().UTC(),
	}
	d.snapshots[name] = snapshot

	cloned := *snapshot

	return &cloned, nil
}

// DeleteSnapshot forgets a snapshot.
func (d *Driver) DeleteSnapshot(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.snapshots[name]; !ok {
		return fmt.Errorf("snapshot %s: %w", name, storage.ErrNotFound)
	}

	delete(d.snapshots, name)

	return nil
}

func (d *Driver) mountpointOf(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(name))
}
