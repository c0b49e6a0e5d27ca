package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/jail-release/internal/logger"
)

// destroyCmd deletes a release dataset with everything below it.
var destroyCmd = &cobra.Command{
	Use:   "destroy NAME",
	Short: "Destroy a release dataset recursively.",
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
		if err = a.service.Destroy(ctx, rel); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Release destroyed", "dataset", a.service.DatasetName(rel))

		return nil
	},
}
