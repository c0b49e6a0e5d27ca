package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/platform"
)

// Config holds the settings shared by the jail-release commands.
type Config struct {
	// RootDataset is the parent of the releases and base datasets, e.g. "zroot/iocage".
	RootDataset string `yaml:"root_dataset"`
	// Distribution pins the host distribution; detected when empty.
	Distribution string `yaml:"distribution"`
	// Processor pins the host architecture; detected when empty.
	Processor string `yaml:"processor"`
	// HostRelease pins the host release version; detected when empty.
	HostRelease string `yaml:"host_release"`
	// MirrorURL overrides the distribution mirror.
	MirrorURL string `yaml:"mirror_url"`
	// CheckHashes enables asset verification against the manifest. Defaults to true.
	CheckHashes *bool `yaml:"check_hashes"`
	// DownloadTimeout bounds a single asset download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// ZFSPath is the zfs binary.
	ZFSPath string `yaml:"zfs_path"`
	// RsyncPath is the rsync binary used to mirror releases into base datasets.
	RsyncPath string `yaml:"rsync_path"`
	// UpdateTool overrides the distribution update tool.
	UpdateTool string `yaml:"update_tool"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "jail-release.yaml"

	// DefaultRootDataset is used when root_dataset is not set.
	DefaultRootDataset = "zroot/iocage"

	// DefaultDownloadTimeout bounds one asset download.
	DefaultDownloadTimeout = 30 * time.Minute

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	//nolint:errcheck // The zero configuration is always valid.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills in defaults.
// Validation errors are *release.ConfigurationError.
func Validate(settings *Config) error {
	settings.RootDataset = strings.Trim(settings.RootDataset, "/")
	if settings.RootDataset == "" {
		settings.RootDataset = DefaultRootDataset
	}

	if settings.CheckHashes == nil {
		checkHashes := true
		settings.CheckHashes = &checkHashes
	}

	if settings.DownloadTimeout <= 0 {
		settings.DownloadTimeout = DefaultDownloadTimeout
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return &release.ConfigurationError{
			Field:  "log_level",
			Value:  settings.LogLevel,
			Reason: "must be one of debug, info, warn, error",
		}
	}

	if settings.Distribution != "" && !slices.Contains(platform.KnownDistributions(), settings.Distribution) {
		return &release.ConfigurationError{
			Field:  "distribution",
			Value:  settings.Distribution,
			Reason: "must be one of " + strings.Join(platform.KnownDistributions(), ", "),
		}
	}

	if settings.HostRelease != "" {
		if err := release.ValidateName(settings.HostRelease); err != nil {
			return err
		}
	}

	if settings.MirrorURL == "" {
		return nil
	}

	normalized, err := release.ValidateMirrorURL(settings.MirrorURL)
	if err != nil {
		return err
	}

	settings.MirrorURL = normalized

	return nil
}

// ShouldCheckHashes reports whether asset verification is enabled.
func (c *Config) ShouldCheckHashes() bool {
	return c.CheckHashes == nil || *c.CheckHashes
}

// ReleasesDataset returns the dataset holding one child per release.
func (c *Config) ReleasesDataset() string {
	return c.RootDataset + "/releases"
}

// BaseDataset returns the dataset holding the base copies of releases.
func (c *Config) BaseDataset() string {
	return c.RootDataset + "/base"
}
