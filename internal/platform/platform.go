// Package platform describes the host the releases are managed on: its
// distribution (mirror, checksum file, base directory layout), processor
// architecture and running release.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/oshokin/jail-release/internal/executor"
	"github.com/oshokin/jail-release/internal/logger"
)

// Supported distribution names.
const (
	FreeBSD     = "FreeBSD"
	HardenedBSD = "HardenedBSD"
)

// hbsdUpdatePath exists only on HardenedBSD hosts.
const hbsdUpdatePath = "/usr/sbin/hbsd-update"

var errUnknownDistribution = errors.New("unknown distribution")

//nolint:gochecknoglobals // Compiled once, read-only.
var patchLevelRegexp = regexp.MustCompile(`-p[0-9]+$`)

// Distribution holds the per-distribution release conventions.
type Distribution struct {
	// Name is FreeBSD or HardenedBSD.
	Name string
	// MirrorURL is the default release mirror for the host processor.
	MirrorURL string
	// HashFile is the checksum manifest published next to the assets.
	HashFile string
	// UpdateTool is the binary that patches an extracted release.
	UpdateTool string
}

// ShipsLib32 reports whether releases carry a lib32 asset.
func (d Distribution) ShipsLib32() bool {
	return d.Name != HardenedBSD
}

// BaseDirs returns the directories that get their own dataset in a base release.
func (d Distribution) BaseDirs() []string {
	dirs := []string{
		"bin",
		"boot",
		"lib",
		"libexec",
		"rescue",
		"sbin",
		"usr/bin",
		"usr/include",
		"usr/lib",
		"usr/libexec",
		"usr/sbin",
		"usr/share",
		"usr/libdata",
	}

	if d.Name == FreeBSD {
		dirs = append(dirs, "usr/lib32")
	}

	return dirs
}

// LookupDistribution returns the conventions of a distribution for a processor.
func LookupDistribution(name, processor string) (Distribution, error) {
	switch name {
	case FreeBSD:
		return Distribution{
			Name:       FreeBSD,
			MirrorURL:  "https://download.freebsd.org/ftp/releases/" + processor,
			HashFile:   "MANIFEST",
			UpdateTool: "freebsd-update",
		}, nil
	case HardenedBSD:
		return Distribution{
			Name:       HardenedBSD,
			MirrorURL:  fmt.Sprintf("https://installer.hardenedbsd.org/pub/HardenedBSD/releases/%s/%s", processor, processor),
			HashFile:   "CHECKSUMS.SHA256",
			UpdateTool: "hbsd-update",
		}, nil
	default:
		return Distribution{}, fmt.Errorf("%q: %w", name, errUnknownDistribution)
	}
}

// Host is the machine releases are fetched for.
type Host struct {
	Distribution Distribution
	// Processor is the machine architecture, e.g. amd64.
	Processor string
	// ReleaseVersion is the running release without patch level, e.g. 13.2-RELEASE.
	ReleaseVersion string
}

// RealName maps a release name onto the directory name used by the mirror.
func (h *Host) RealName(releaseName string) string {
	if h.Distribution.Name == HardenedBSD {
		return fmt.Sprintf("HardenedBSD-%s-%s-LATEST", releaseName, h.Processor)
	}

	return releaseName
}

// Overrides pins host facts instead of detecting them.
type Overrides struct {
	Distribution   string
	Processor      string
	ReleaseVersion string
}

// Detect fills the host facts not pinned by overrides using uname(1).
func Detect(ctx context.Context, runner executor.Runner, overrides Overrides) (*Host, error) {
	processor := overrides.Processor
	if processor == "" {
		out, err := uname(ctx, runner, "-m")
		if err != nil {
			return nil, err
		}

		processor = out
	}

	releaseVersion := overrides.ReleaseVersion
	if releaseVersion == "" {
		out, err := uname(ctx, runner, "-r")
		if err != nil {
			return nil, err
		}

		releaseVersion = out
	}

	name := overrides.Distribution
	if name == "" {
		name = FreeBSD
		if _, err := os.Stat(hbsdUpdatePath); err == nil {
			name = HardenedBSD
		}
	}

	distribution, err := LookupDistribution(name, processor)
	if err != nil {
		return nil, err
	}

	host := &Host{
		Distribution:   distribution,
		Processor:      processor,
		ReleaseVersion: patchLevelRegexp.ReplaceAllString(releaseVersion, ""),
	}

	logger.DebugKV(ctx, "Host detected",
		"distribution", host.Distribution.Name,
		"processor", host.Processor,
		"release", host.ReleaseVersion,
	)

	return host, nil
}

// KnownDistributions lists the supported distribution names.
func KnownDistributions() []string {
	return slices.Clone([]string{FreeBSD, HardenedBSD})
}

func uname(ctx context.Context, runner executor.Runner, flag string) (string, error) {
	result, err := runner.Run(ctx, "uname", flag)
	if err != nil {
		return "", fmt.Errorf("detect host: %w", err)
	}

	return strings.TrimSpace(result.Stdout), nil
}
