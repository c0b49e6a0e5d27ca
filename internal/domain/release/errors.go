package release

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFetched is returned by operations that require an extracted release.
	ErrNotFetched = errors.New("release is not fetched")
	// ErrNoChecksum is returned when the manifest has no digest for an asset.
	ErrNoChecksum = errors.New("checksum missing for asset")
)

// ConfigurationError reports invalid input detected before any I/O happens.
type ConfigurationError struct {
	// Field names the rejected setting.
	Field string
	// Value is the rejected input.
	Value string
	// Reason describes the violated rule.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NetworkError wraps a transport failure while talking to a mirror.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a digest mismatch on a downloaded asset.
type IntegrityError struct {
	Release  string
	Asset    string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf(
		"asset %s of release %s has an invalid checksum (was %s but expected %s)",
		e.Asset, e.Release, e.Actual, e.Expected,
	)
}

// UnsafeArchiveContentError reports an archive entry that fails the path-safety check.
type UnsafeArchiveContentError struct {
	Release string
	Asset   string
	Entry   string
	Reason  string
}

func (e *UnsafeArchiveContentError) Error() string {
	return fmt.Sprintf(
		"asset %s of release %s contains illegal entry %q: %s",
		e.Asset, e.Release, e.Entry, e.Reason,
	)
}

// StorageError wraps a dataset or snapshot operation failure.
type StorageError struct {
	// Op is the storage operation, e.g. "get snapshot".
	Op string
	// Name is the dataset or snapshot name.
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PreconditionError reports an operation invoked on a release in the wrong state.
type PreconditionError struct {
	Release string
	Reason  string
	Err     error
}

func (e *PreconditionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("release %s: %v", e.Release, e.Err)
	}

	return fmt.Sprintf("release %s: %s: %v", e.Release, e.Reason, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
