package cmd

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/assetpipe/assetctl/internal/builder"
	"github.com/assetpipe/assetctl/internal/config"
	assetfs "github.com/assetpipe/assetctl/internal/fs"
)

func newListCommand(root *rootParams) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			kinds := builder.Kinds
			if kind != "" {
				k, err := builder.ParseKind(kind)
				if err != nil {
					return err
				}
				kinds = []builder.Kind{k}
			}

			b, err := newBuilder(cfg)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Kind", "Name", "Output", "Sources")
			for _, k := range kinds {
				for _, name := range b.Bundles(k) {
					bd, err := b.Lookup(k, name)
					if err != nil {
						return err
					}
					sources, err := bd.Sources()
					if err != nil {
						return err
					}
					if err := table.Append([]string{string(k), name, bd.OutputFilename(), strconv.Itoa(len(sources))}); err != nil {
						return err
					}
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "list only bundles of this kind (css or js)")

	return cmd
}

// newBuilder returns a builder able to look bundles up and compute urls. It
// has no storage, so it cannot build.
func newBuilder(cfg *config.Root) (*builder.Builder, error) {
	tree, err := assetfs.NewTree(cfg.SourceDirectories(), cfg.ExcludedFiles, cfg.CompileDirectory())
	if err != nil {
		return nil, err
	}
	return builder.New(builder.Options{Config: cfg, Sources: tree.Sources})
}
