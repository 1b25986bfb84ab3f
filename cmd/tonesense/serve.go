package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-tonesense/internal/logger"
)

func newServeCmd() *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local workflow API",
		Long: `Starts the local HTTP API that a presentation layer drives. Workflow
events are streamed on /ws.`,
		Example: `  # Listen on the configured HOST and PORT (127.0.0.1:8090)
  tonesense serve

  # Listen on all interfaces
  tonesense serve --host 0.0.0.0 --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			cfg := c.Config()
			if host != "" {
				cfg.Host = host
			}
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			c.Start(cmd.Context())

			server := &http.Server{
				Addr:         cfg.ServerAddress(),
				Handler:      c.Handler(),
				ReadTimeout:  cfg.RequestTimeout,
				WriteTimeout: cfg.RequestTimeout,
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.WithFields(logrus.Fields{
					"address":     cfg.ServerAddress(),
					"timeout":     cfg.RequestTimeout,
					"service_url": cfg.ServiceURL,
				}).Info("Starting HTTP server")

				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Error("Server forced to shutdown")
					return err
				}
				logger.Info("Server exited")
				return nil
			case err := <-serverErr:
				logger.WithError(err).Error("Failed to start server")
				return err
			}
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Address to listen on (overrides HOST)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}
