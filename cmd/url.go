package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newURLCommand(root *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "url path...",
		Short: "Print the url individual source files are served at",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			b, err := newBuilder(cfg)
			if err != nil {
				return err
			}

			for _, p := range args {
				fmt.Fprintln(cmd.OutOrStdout(), b.IndividualURL(p))
			}
			return nil
		},
	}
}
