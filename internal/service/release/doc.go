// Package release manages the lifecycle of base system releases: it fetches
// assets from a mirror, verifies them against the published checksum
// manifest, extracts them into the release dataset, applies the baseline jail
// configuration, keeps the shared base dataset in sync and manages snapshots.
//
// Fetching is exposed as a lazy sequence of lifecycle events (FetchEvents):
// the work of a stage has happened by the time its terminal event is yielded.
// Fetch drains that sequence for callers that do not stream.
package release
