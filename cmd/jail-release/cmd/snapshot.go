package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	snapshotForce bool

	// snapshotCmd takes or reuses a snapshot of a release root.
	snapshotCmd = &cobra.Command{
		Use:   "snapshot NAME IDENTIFIER",
		Short: "Snapshot the root dataset of a release.",
		Long: `Returns the snapshot NAME/root@IDENTIFIER, taking it when missing.
An existing snapshot is reused unless --force replaces it with a new one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			rel, err := a.release(args[0])
			if err != nil {
				return err
			}

			snapshot, err := a.service.Snapshot(releaseContext(cmd.Context(), rel), rel, args[1], snapshotForce)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", snapshot.Name, snapshot.GUID)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	snapshotCmd.Flags().BoolVarP(&snapshotForce, "force", "f", false, "replace an existing snapshot")
}
