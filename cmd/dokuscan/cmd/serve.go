package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokuscan/dokuscan/internal/docfield"
	"github.com/dokuscan/dokuscan/internal/server"
)

// serveCmd starts the extraction HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP server",
	Long: `Start an HTTP server exposing document field extraction.

Endpoints:
  POST /v1/extract     multipart upload (image + doc type)
  GET  /v1/extract/ws  websocket progress stream
  GET  /healthz        health check
  GET  /metrics        prometheus metrics

Examples:
  dokuscan serve
  dokuscan serve --port 9090 --max-upload-size 64`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host, _ := cmd.Flags().GetString("host")
		if host == "" {
			host = cfg.Server.Host
		}
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}
		maxUploadMB, _ := cmd.Flags().GetInt("max-upload-size")
		if maxUploadMB == 0 {
			maxUploadMB = cfg.Server.MaxUploadMB
		}
		timeout, _ := cmd.Flags().GetInt("timeout")
		if timeout == 0 {
			timeout = cfg.Server.TimeoutSeconds
		}
		corsOrigin, _ := cmd.Flags().GetString("cors-origin")
		shutdownTimeout, _ := cmd.Flags().GetInt("shutdown-timeout")

		serverConfig := server.Config{
			Host:        host,
			Port:        port,
			CORSOrigin:  corsOrigin,
			MaxUploadMB: int64(maxUploadMB),
			TimeoutSec:  timeout,
			Passport:    cfg.ToPipelineConfig(docfield.DocPassport),
			IDCard:      cfg.ToPipelineConfig(docfield.DocIDCard),
		}

		srv, err := server.NewServer(serverConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		srv.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
			WriteTimeout:      time.Duration(timeout) * time.Second,
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			slog.Info("Starting extraction server", "host", host, "port", port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		slog.Info("Shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}

		slog.Info("Releasing recognition engines")
		if err := srv.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host address to bind to")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on")
	serveCmd.Flags().Int("max-upload-size", 0, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 0, "request timeout in seconds")
	serveCmd.Flags().String("cors-origin", "*", "CORS origin header value")
	serveCmd.Flags().Int("shutdown-timeout", 15, "graceful shutdown timeout in seconds")
}
