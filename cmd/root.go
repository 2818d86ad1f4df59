// Package cmd implements the assetctl command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/assetpipe/assetctl/internal/config"
	"github.com/assetpipe/assetctl/internal/logging"
)

const defaultConfigFile = "assetctl.yaml"

type rootParams struct {
	configFiles []string
	logLevel    logging.Level
	logFormat   logging.Format
	noProgress  bool
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	params := rootParams{logLevel: logging.Info}

	root := &cobra.Command{
		Use:   "assetctl",
		Short: "Bundle, compile and publish static assets",
		Long: `assetctl concatenates the CSS and JavaScript bundles declared in its
configuration, rewrites stylesheet urls, compiles client side templates and
saves the results to the configured storage.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringArrayVarP(&params.configFiles, "config", "c", []string{defaultConfigFile}, "configuration file or directory, may be repeated and is merged in order")
	flags.Var(enumflag.New(&params.logLevel, "level", logging.LevelIds, enumflag.EnumCaseInsensitive), "log-level", "log level: debug, info, warn or error")
	flags.Var(enumflag.New(&params.logFormat, "format", logging.FormatIds, enumflag.EnumCaseInsensitive), "log-format", "log format: console or json")
	flags.BoolVar(&params.noProgress, "no-progress", false, "do not report build progress")

	root.AddCommand(
		newBuildCommand(&params),
		newRunCommand(&params),
		newListCommand(&params),
		newURLCommand(&params),
		newValidateCommand(&params),
		newSchemaCommand(),
	)

	return root
}

func (p *rootParams) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Level:  p.logLevel,
		Format: p.logFormat,
		Output: cmd.ErrOrStderr(),
	})
}

func (p *rootParams) progressOutput(cmd *cobra.Command) io.Writer {
	if p.noProgress {
		return nil
	}
	return cmd.ErrOrStderr()
}

// mergedConfig returns the configuration files merged into one document.
func (p *rootParams) mergedConfig() ([]byte, error) {
	if len(p.configFiles) == 0 {
		return nil, errors.New("no configuration file given")
	}

	bs, err := config.Merge(p.configFiles, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return bs, nil
}

func (p *rootParams) loadConfig() (*config.Root, error) {
	bs, err := p.mergedConfig()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
