package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/emanehab99/gstar-stats/internal/api"
	"github.com/emanehab99/gstar-stats/internal/core"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve assembled reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			ctx, cancel := signalContext()
			defer cancel()

			deps, err := a.openReportDeps(ctx, reportFlags{})
			if err != nil {
				return err
			}
			defer deps.Close()

			cache, closeCache := a.openCache()
			defer closeCache()

			handler := api.NewReportHandler(func(ctx context.Context, p core.Period) (core.Report, error) {
				return cache.GetOrBuild(ctx, p, deps.sourceName(), func(ctx context.Context) (core.Report, error) {
					return deps.build(ctx, p)
				})
			})
			srv := &http.Server{
				Addr:              listen,
				Handler:           api.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from [server] listen)")
	return cmd
}

// runServer serves until ctx is done and then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("event", "server_start").WithField("addr", srv.Addr).Info("serving reports")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}
	log.WithField("event", "server_stop").Info("server stopped")
	return nil
}
