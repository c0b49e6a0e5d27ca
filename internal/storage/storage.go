// Package storage declares the dataset and snapshot capabilities the release
// services consume from a copy-on-write storage layer.
//
// Drivers report a missing dataset or snapshot with an error wrapping
// ErrNotFound. Every other error is a genuine storage failure.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a dataset or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Dataset describes a filesystem volume.
type Dataset struct {
	// Name is the full dataset name, e.g. "zroot/iocage/releases/13.2-RELEASE".
	Name string
	// Mountpoint is where the dataset is mounted, empty when it has none.
	Mountpoint string
	// Mounted reports whether the dataset is currently mounted.
	Mounted bool
}

// Pool returns the name of the pool holding the dataset.
func (d *Dataset) Pool() string {
	return PoolOf(d.Name)
}

// Snapshot describes a point-in-time reference to a dataset.
type Snapshot struct {
	// Name is "{dataset}@{identifier}".
	Name string
	// GUID uniquely identifies this snapshot object; a recreated snapshot gets a new one.
	GUID string
	// CreatedAt is the creation time reported by the driver.
	CreatedAt time.Time
}

// Dataset returns the dataset part of the snapshot name.
func (s *Snapshot) Dataset() string {
	dataset, _, _ := strings.Cut(s.Name, "@")

	return dataset
}

// Identifier returns the part after "@".
func (s *Snapshot) Identifier() string {
	_, identifier, _ := strings.Cut(s.Name, "@")

	return identifier
}

// Driver is the storage capability interface.
type Driver interface {
	// GetDataset returns the dataset or an error wrapping ErrNotFound.
	GetDataset(ctx context.Context, name string) (*Dataset, error)
	// GetOrCreateDataset returns the dataset, creating it and its parents when absent.
	GetOrCreateDataset(ctx context.Context, name string) (*Dataset, error)
	// Mount mounts the dataset and returns its refreshed description.
	Mount(ctx context.Context, name string) (*Dataset, error)
	// DeleteDatasetRecursive destroys the dataset with its children and snapshots.
	DeleteDatasetRecursive(ctx context.Context, name string) error
	// GetSnapshot returns the snapshot or an error wrapping ErrNotFound.
	GetSnapshot(ctx context.Context, name string) (*Snapshot, error)
	// CreateSnapshot snapshots the current state of the dataset named before "@".
	CreateSnapshot(ctx context.Context, name string) (*Snapshot, error)
	// DeleteSnapshot destroys a snapshot.
	DeleteSnapshot(ctx context.Context, name string) error
}

// PoolOf returns the first component of a dataset name.
func PoolOf(name string) string {
	pool, _, _ := strings.Cut(name, "/")

	return pool
}

// Join composes a dataset name from parts.
func Join(parts ...string) string {
	return path.Join(parts...)
}

// SnapshotName composes "{dataset}@{identifier}".
func SnapshotName(dataset, identifier string) string {
	return dataset + "@" + identifier
}
