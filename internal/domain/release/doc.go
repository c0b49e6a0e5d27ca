// Package release defines the identity of a base operating-system image used
// to instantiate jails.
//
// A Release carries its validated name, end-of-life flag, the set of assets
// published on the mirror, an optional mirror override and the values that are
// resolved once per instance (checksum map, update branch). The package also
// holds the version comparison rules and the error taxonomy shared by the
// release lifecycle services.
package release
