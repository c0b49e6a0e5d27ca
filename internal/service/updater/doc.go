// Package updater patches extracted releases with the distribution update
// tool (freebsd-update or hbsd-update) run against the release root.
//
// A run is refused while another instance of the tool is active on the host,
// because both would share the tool's working directories.
package updater
