package release

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
)

const (
	// AssetSuffix is the extension of release archives on the mirror.
	AssetSuffix = ".txz"

	// AssetBase is the base system archive every release ships.
	AssetBase = "base"
	// AssetLib32 holds the 32-bit compatibility libraries.
	AssetLib32 = "lib32"
)

//nolint:gochecknoglobals // Compiled once, read-only.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,31}$`)

//nolint:gochecknoglobals // Read-only lookup table.
var supportedSchemes = []string{"https", "http", "ftp"}

// Release is a named base system image.
type Release struct {
	name      string
	eol       bool
	assets    []string
	mirrorURL string

	// hashes is the memoized checksum map, nil until resolved.
	hashes map[string]string
	// branch is the memoized update branch, empty until resolved.
	branch string
}

// Option customizes a Release on construction.
type Option func(*Release)

// WithEOL marks the release as end-of-life.
func WithEOL(eol bool) Option {
	return func(r *Release) {
		r.eol = eol
	}
}

// WithoutLib32 drops the lib32 asset for distributions that do not ship it.
func WithoutLib32() Option {
	return func(r *Release) {
		r.assets = slices.DeleteFunc(r.assets, func(asset string) bool {
			return asset == AssetLib32
		})
	}
}

// WithAssets replaces the default asset list.
func WithAssets(assets ...string) Option {
	return func(r *Release) {
		r.SetAssets(assets...)
	}
}

// New validates the name and returns a release with the default asset set.
func New(name string, opts ...Option) (*Release, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r := &Release{
		name:   name,
		assets: []string{AssetBase, AssetLib32},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// ValidateName checks a release name against the naming grammar.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return &ConfigurationError{
			Field:  "release name",
			Value:  name,
			Reason: "must start with a letter or digit and contain only letters, digits, '.', '-' or '_'",
		}
	}

	return nil
}

// ValidateMirrorURL checks that a mirror URL uses a supported scheme.
func ValidateMirrorURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigurationError{
			Field:  "mirror url",
			Value:  raw,
			Reason: err.Error(),
		}
	}

	if !slices.Contains(supportedSchemes, parsed.Scheme) {
		return "", &ConfigurationError{
			Field:  "mirror url",
			Value:  raw,
			Reason: "scheme must be one of " + strings.Join(supportedSchemes, ", "),
		}
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

// Name returns the release name.
func (r *Release) Name() string {
	return r.name
}

func (r *Release) String() string {
	return r.name
}

// EOL reports whether the release reached its end of life.
func (r *Release) EOL() bool {
	return r.eol
}

// Assets returns a copy of the asset names without archive suffix.
func (r *Release) Assets() []string {
	return slices.Clone(r.assets)
}

// SetAssets replaces the asset list, stripping the archive suffix from each name.
func (r *Release) SetAssets(assets ...string) {
	normalized := make([]string, 0, len(assets))
	for _, asset := range assets {
		normalized = append(normalized, strings.TrimSuffix(asset, AssetSuffix))
	}

	r.assets = normalized
}

// MirrorURL returns the override, falling back to the distribution default.
func (r *Release) MirrorURL(distributionDefault string) string {
	if r.mirrorURL == "" {
		return distributionDefault
	}

	return r.mirrorURL
}

// SetMirrorURL overrides the distribution mirror.
func (r *Release) SetMirrorURL(raw string) error {
	normalized, err := ValidateMirrorURL(raw)
	if err != nil {
		return err
	}

	r.mirrorURL = normalized

	return nil
}

// AnnotatedName returns the name followed by the EOL and recency annotations.
func (r *Release) AnnotatedName(hostReleaseName string) string {
	var annotations []string

	if r.eol {
		annotations = append(annotations, "EOL")
	}

	if hostReleaseName != "" && IsNewerThanHost(r.name, hostReleaseName) {
		annotations = append(annotations, "Newer than Host")
	}

	if len(annotations) == 0 {
		return r.name
	}

	return r.name + " (" + strings.Join(annotations, ", ") + ")"
}

// Hashes returns the memoized checksum map and whether it was resolved.
func (r *Release) Hashes() (map[string]string, bool) {
	return r.hashes, r.hashes != nil
}

// SetHashes memoizes the checksum map. Later calls are ignored.
func (r *Release) SetHashes(hashes map[string]string) {
	if r.hashes != nil {
		return
	}

	r.hashes = hashes
}

// Branch returns the memoized update branch and whether it was resolved.
func (r *Release) Branch() (string, bool) {
	return r.branch, r.branch != ""
}

// SetBranch memoizes the update branch. Later calls are ignored.
func (r *Release) SetBranch(branch string) {
	if r.branch != "" {
		return
	}

	r.branch = branch
}
