// internex proxies and rewrites a target web page so it can be browsed
// through this server's own origin.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/internex-proxy/internex/internal/config"
	"github.com/internex-proxy/internex/internal/logging"
	"github.com/internex-proxy/internex/internal/transport"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "internex",
		Short: "internex rewriting proxy server",
		RunE:  run,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	transport.AssetsDir = cfg.Server.AssetsDir

	handler := transport.WithRequestID(transport.WithLogging(log, transport.NewMux(log)))

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutdown signal received")
	case err := <-errChan:
		log.Error("server error", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
