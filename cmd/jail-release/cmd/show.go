package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/jail-release/internal/platform"
)

// showCmd prints what is known about a release.
var showCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the state of a release.",
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
		host := a.service.Host()

		fetched, err := a.service.IsFetched(ctx, rel)
		if err != nil {
			return err
		}

		available, err := a.service.Available(ctx, rel)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printField(out, "name", rel.AnnotatedName(host.ReleaseVersion))
		printField(out, "fetched", fetched)
		printField(out, "available", available)
		printField(out, "remote", a.service.RemoteURL(rel))
		printField(out, "assets", strings.Join(rel.Assets(), ","))
		printField(out, "dataset", a.service.DatasetName(rel))
		printField(out, "root", a.service.RootDatasetName(rel))
		printField(out, "base", a.service.BaseDatasetName(rel))
		printField(out, "pool", a.service.Pool(ctx, rel))

		if fetched && host.Distribution.Name == platform.HardenedBSD {
			branch, err := a.service.UpdateBranch(ctx, rel)
			if err != nil {
				return err
			}

			printField(out, "branch", branch)
		}

		return nil
	},
}

func printField(out io.Writer, name string, value any) {
	_, _ = fmt.Fprintf(out, "%-10s %v\n", name+":", value)
}
