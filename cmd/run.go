package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/assetpipe/assetctl/internal/service"
)

func newRunCommand(root *rootParams) *cobra.Command {
	var (
		parallelism int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Rebuild bundles periodically",
		Long: `Build every configured bundle and keep rebuilding it at the configured
rebuild_interval until interrupted. SIGHUP triggers an immediate rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			log := root.logger(cmd)
			svc := service.New().
				WithConfig(cfg).
				WithParallelism(parallelism).
				WithLogger(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)

			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						log.Infof("Rebuilding all bundles")
						if err := svc.Trigger(); err != nil {
							log.Warnf("failed to trigger rebuild: %v", err)
						}
					}
				}
			}()

			if metricsAddr != "" {
				srv, err := serveMetrics(ctx, metricsAddr)
				if err != nil {
					return err
				}
				defer srv.Close()
				log.Infof("Serving metrics on %s", srv.Addr)
			}

			log.Infof("Starting asset builds")
			return svc.Run(ctx)
		},
	}

	addParallelismFlag(cmd.Flags(), &parallelism)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on, e.g. :9090")

	return cmd
}

// serveMetrics serves the prometheus registry at /metrics until the server is
// closed.
func serveMetrics(ctx context.Context, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:        ln.Addr().String(),
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	return srv, nil
}
