// Package config defines the settings of the jail-release commands and
// provides helpers to load, validate and save them in YAML format.
//
// Config names the storage root, pins host facts that would otherwise be
// detected and optionally overrides the release mirror.
package config
