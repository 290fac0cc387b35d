package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kbagent/server"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Starts the chat endpoint (POST /api/chat) together with resource ingestion, the tool catalog, health and metrics endpoints.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]any{}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				overrides["server.addr"] = addr
			}

			app, err := c.loadApp(cmd, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			defer func() {
				if err := app.Close(context.WithoutCancel(ctx)); err != nil {
					app.Logger.Error("serve.close_failed", "error", err.Error())
				}
			}()

			cfg := app.Config.Server
			srv := &http.Server{
				Addr: cfg.Addr,
				Handler: server.New(app.Agent, app.Knowledge, func(o *server.Options) {
					o.Protocol = cfg.Protocol
					o.RequestTimeout = cfg.RequestTimeout
					o.Gatherer = app.Registry
					o.Logger = app.Logger
				}),
			}

			serverErrors := make(chan error, 1)

			go func() {
				app.Logger.Info("serve.listening", "addr", srv.Addr)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}

				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
				app.Logger.Info("serve.shutdown", "timeout", cfg.ShutdownTimeout.String())

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					_ = srv.Close()
					return fmt.Errorf("graceful shutdown did not complete in %v: %w", cfg.ShutdownTimeout, err)
				}

				return nil
			}
		},
	}

	cmd.Flags().StringP("addr", "a", "", "Listen address (overrides server.addr)")

	return cmd
}
