package cmd

import (
	"errors"
	"io"
	"runtime"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/assetpipe/assetctl/internal/builder"
	"github.com/assetpipe/assetctl/internal/service"
)

type buildParams struct {
	kind        string
	parallelism int
}

func newBuildCommand(root *rootParams) *cobra.Command {
	var params buildParams

	cmd := &cobra.Command{
		Use:   "build [bundle...]",
		Short: "Build bundles once",
		Long: `Build every configured bundle once and save the results. With --kind only
bundles of that kind are built, optionally restricted to the named ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			svc := service.New().
				WithConfig(cfg).
				WithSingleShot(true).
				WithParallelism(params.parallelism).
				WithLogger(root.logger(cmd)).
				WithProgress(root.progressOutput(cmd))

			switch {
			case params.kind != "":
				kind, err := builder.ParseKind(params.kind)
				if err != nil {
					return err
				}
				svc.WithSelection(kind, args...)
			case len(args) > 0:
				return errors.New("naming bundles requires --kind")
			}

			runErr := svc.Run(cmd.Context())
			if results := svc.Results(); len(results) > 0 {
				if err := printResults(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&params.kind, "kind", "k", "", "build only bundles of this kind (css or js)")
	addParallelismFlag(cmd.Flags(), &params.parallelism)

	return cmd
}

func addParallelismFlag(fs *pflag.FlagSet, n *int) {
	fs.IntVarP(n, "parallelism", "p", runtime.GOMAXPROCS(0), "number of bundles built concurrently")
}

func printResults(w io.Writer, results []service.Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Kind", "Name", "State", "Output", "Message")
	for _, r := range results {
		if err := table.Append([]string{string(r.Kind), r.Name, r.Status.State.String(), r.Status.Output, r.Status.Message}); err != nil {
			return err
		}
	}
	return table.Render()
}
