package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/jail-release/internal/config"
	domain "github.com/oshokin/jail-release/internal/domain/release"
	"github.com/oshokin/jail-release/internal/service/release"
)

const (
	progressBarWidth    = 40
	progressBarThrottle = 100 * time.Millisecond
)

var (
	fetchUpdate       bool
	fetchFetchUpdates bool
	fetchMirror       string
	fetchAssets       []string
	fetchNoHashes     bool
	fetchNoProgress   bool

	// fetchCmd downloads, verifies and extracts a release.
	fetchCmd = &cobra.Command{
		Use:   "fetch NAME",
		Short: "Fetch a release and keep its base dataset in sync.",
		Long: `Fetches the release from the mirror unless it is already extracted, applies
the default jail configuration and optionally patches it with the distribution
update tool. The base dataset is re-synchronized whenever the release changed.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := fetchCmd.Flags()
	flags.BoolVarP(&fetchUpdate, "update", "u", false, "install available updates, implies --fetch-updates")
	flags.BoolVar(&fetchFetchUpdates, "fetch-updates", false, "download available updates")
	flags.StringVar(&fetchMirror, "mirror", "", "mirror URL overriding the configuration")
	flags.StringSliceVar(&fetchAssets, "asset", nil, "assets to fetch (default base and lib32)")
	flags.BoolVar(&fetchNoHashes, "no-check-hashes", false, "skip checksum verification")
	flags.BoolVar(&fetchNoProgress, "no-progress", false, "do not render download progress")
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, func(cfg *config.Config) {
		if fetchMirror != "" {
			cfg.MirrorURL = fetchMirror
		}

		if fetchNoHashes {
			checkHashes := false
			cfg.CheckHashes = &checkHashes
		}
	})
	if err != nil {
		return err
	}

	var opts []domain.Option
	if len(fetchAssets) > 0 {
		opts = append(opts, domain.WithAssets(fetchAssets...))
	}

	rel, err := a.release(args[0], opts...)
	if err != nil {
		return err
	}

	sink := newEventSink(cmd.OutOrStdout(), cmd.ErrOrStderr(), fetchNoProgress)
	fetchOptions := release.FetchOptions{
		FetchUpdates: fetchFetchUpdates || fetchUpdate,
		Update:       fetchUpdate,
		Progress:     sink.bar,
	}

	for e, err := range a.service.FetchEvents(releaseContext(cmd.Context(), rel), rel, fetchOptions) {
		sink.print(e)

		if err != nil {
			return err
		}
	}

	return nil
}
