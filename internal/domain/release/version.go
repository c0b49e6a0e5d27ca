package release

import (
	"strconv"
	"strings"
)

// DefaultVersionDigits is the width the major version is padded to before comparison.
const DefaultVersionDigits = 4

// currentToken marks development snapshots that are always the newest.
const currentToken = "CURRENT"

// PadName left-pads the numeric major version of a release name with zeros so
// that lexical comparison approximates numeric comparison: "9.1-RELEASE"
// becomes "0009.1-RELEASE". Names without a numeric major version are returned
// unchanged.
func PadName(name string, digits int) string {
	head, _, _ := strings.Cut(name, "-")
	majorToken, _, _ := strings.Cut(head, ".")

	major, err := strconv.Atoi(majorToken)
	if err != nil {
		return name
	}

	width := len(strconv.Itoa(major))
	if width >= digits {
		return name
	}

	return strings.Repeat("0", digits-width) + name
}

// IsNewerThanHost reports whether the release name denotes a newer version than
// the release the host runs.
func IsNewerThanHost(releaseName, hostReleaseName string) bool {
	host := PadName(hostReleaseName, DefaultVersionDigits)
	candidate := PadName(releaseName, DefaultVersionDigits)

	if strings.HasPrefix(candidate, currentToken) {
		return !strings.HasPrefix(host, currentToken)
	}

	if len(candidate) > len(host) {
		candidate = candidate[:len(host)]
	}

	return host < candidate
}
