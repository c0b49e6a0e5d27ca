package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/jail-release/internal/config"
	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/executor"
	"github.com/oshokin/jail-release/internal/logger"
	"github.com/oshokin/jail-release/internal/platform"
	"github.com/oshokin/jail-release/internal/service/release"
	"github.com/oshokin/jail-release/internal/service/updater"
	"github.com/oshokin/jail-release/internal/storage/zfs"
)

// app bundles the configuration with the release service built from it.
type app struct {
	cfg     *config.Config
	service *release.Service
}

// newApp loads the configuration, applies overrides and wires the service.
func newApp(cmd *cobra.Command, overrides ...func(*config.Config)) (*app, error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	for _, override := range overrides {
		override(cfg)
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	if err = logger.SetLevelName(cfg.LogLevel); err != nil {
		return nil, err
	}

	runner := executor.NewLocal()

	host, err := platform.Detect(ctx, runner, platform.Overrides{
		Distribution:   cfg.Distribution,
		Processor:      cfg.Processor,
		ReleaseVersion: cfg.HostRelease,
	})
	if err != nil {
		return nil, err
	}

	service := release.New(
		zfs.New(runner, cfg.ZFSPath),
		host,
		release.Layout{
			ReleasesDataset: cfg.ReleasesDataset(),
			BaseDataset:     cfg.BaseDataset(),
		},
		release.WithMirror(release.NewMirror(cfg.DownloadTimeout)),
		release.WithSyncer(release.NewRsyncSyncer(runner, cfg.RsyncPath)),
		release.WithUpdater(updater.New(runner, host.Distribution, updater.WithProgram(cfg.UpdateTool))),
		release.WithHashCheck(cfg.ShouldCheckHashes()),
	)

	return &app{cfg: cfg, service: service}, nil
}

// loadConfig reads the configuration file. The default file is optional.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		logger.DebugKV(cmd.Context(), "Configuration file not found, using defaults", "path", configPath)

		return config.Default(), nil
	}

	return nil, err
}

// release builds the named release with the configured mirror override.
func (a *app) release(name string, opts ...domain.Option) (*domain.Release, error) {
	rel, err := a.service.NewRelease(name, opts...)
	if err != nil {
		return nil, err
	}

	if a.cfg.MirrorURL != "" {
		if err = rel.SetMirrorURL(a.cfg.MirrorURL); err != nil {
			return nil, err
		}
	}

	return rel, nil
}

// releaseContext attaches the release name to the command context.
func releaseContext(ctx context.Context, rel *domain.Release) context.Context {
	return logger.WithKV(ctx, "release", rel.Name())
}
