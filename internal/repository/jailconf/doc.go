// Package jailconf persists the key/value configuration files of a jail root
// (rc.conf, sysctl.conf).
//
// A File keeps unrelated lines and comments untouched, rewrites only the keys
// that are set and reports whether saving changed anything. Writes replace the
// file atomically through go-update with a SHA-256 check of the new contents.
package jailconf
