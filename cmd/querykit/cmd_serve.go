package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rpattn/querykit/internal/api"
	"github.com/rpattn/querykit/internal/export"
	"github.com/rpattn/querykit/internal/metrics"
	"github.com/rpattn/querykit/internal/pagination"
	"github.com/rpattn/querykit/internal/query"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/JSON API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := openStores(ctx, logger)
			if err != nil {
				return fmt.Errorf("serve: opening store: %w", err)
			}
			defer st.Close()

			if migrate && st.conn != nil {
				if err := runMigrations(); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			builder, cache, err := newBuilder(st, logger, query.WithObserver(m))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv := api.NewServer(api.Dependencies{
				Builder:        builder,
				Catalogs:       cache,
				Schemas:        st.schemas,
				Entities:       st.entities,
				Paginator:      pagination.New(pagination.WithMaxPageSize(cfg.Pagination.MaxItemsPerPage)),
				Importer:       st.importer(logger),
				Exporter:       export.NewService(export.WithLogger(logger)),
				Metrics:        m,
				Logger:         logger,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			})

			httpSrv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API server starting", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case startErr := <-errCh:
				return startErr
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("serve: graceful shutdown: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving (postgres only)")
	return cmd
}
