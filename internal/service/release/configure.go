package release

import (
	"context"
	"path/filepath"

	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/repository/jailconf"
)

const (
	rcConfPath     = "etc/rc.conf"
	sysctlConfPath = "etc/sysctl.conf"
)

// Configure merges the default settings into the release root and reports
// whether any file was written.
func (s *Service) Configure(ctx context.Context, rel *domain.Release) (bool, error) {
	root, err := s.requireFetched(ctx, rel)
	if err != nil {
		return false, err
	}

	return s.configureRoot(ctx, root.Mountpoint)
}

func (s *Service) configureRoot(ctx context.Context, rootDir string) (bool, error) {
	rcChanged, err := applyDefaults(ctx, filepath.Join(rootDir, rcConfPath), jailconf.RCConf, s.defaults.RCConf)
	if err != nil {
		return false, err
	}

	sysctlChanged, err := applyDefaults(ctx, filepath.Join(rootDir, sysctlConfPath), jailconf.SysctlConf, s.defaults.SysctlConf)
	if err != nil {
		return false, err
	}

	return rcChanged || sysctlChanged, nil
}

func applyDefaults(ctx context.Context, path string, format jailconf.Format, settings []jailconf.Setting) (bool, error) {
	file, err := jailconf.Load(path, format)
	if err != nil {
		return false, err
	}

	if err = file.Apply(settings); err != nil {
		return false, err
	}

	changed, err := file.Save(ctx)
	if err != nil {
		return false, err
	}

	if changed {
		logger.InfoKV(ctx, "Default settings written", "path", path)
	}

	return changed, nil
}
