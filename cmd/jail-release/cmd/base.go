package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/jail-release/internal/logger"
)

// baseCmd re-synchronizes the base dataset of a fetched release.
var baseCmd = &cobra.Command{
	Use:   "base NAME",
	Short: "Synchronize the base dataset with the release root.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		rel, err := a.release(args[0])
		if err != nil {
			return err
		}

		ctx := releaseContext(cmd.Context(), rel)
		if err = a.service.UpdateBase(ctx, rel); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Base dataset synchronized", "dataset", a.service.BaseDatasetName(rel))

		return nil
	},
}
