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

	"github.com/hiveswarm/hive/pkg/config"
	"github.com/hiveswarm/hive/pkg/hive"
	"github.com/hiveswarm/hive/pkg/log"
	"github.com/hiveswarm/hive/pkg/metrics"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hive",
	Short:   "Hive - distributed task coordinator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hive version %s\ncommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "", "Path to config directory")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Hive coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, logLevel, err := config.LoadHive(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: true})
		logger := log.WithComponent("hive")
		metrics.SetVersion(Version)

		h := hive.New(cfg, logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := h.Start(ctx); err != nil {
			return fmt.Errorf("failed to start hive: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		metricsAddr := "0.0.0.0:9420"
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		logger.Info().Str("bind_addr", cfg.BindAddr).Str("metrics_addr", metricsAddr).Msg("hive running, press Ctrl+C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("metrics server failed")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		if err := h.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}
