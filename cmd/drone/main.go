package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hiveswarm/hive/pkg/config"
	"github.com/hiveswarm/hive/pkg/drone"
	"github.com/hiveswarm/hive/pkg/log"
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
	Use:     "drone",
	Short:   "Drone - worker agent for a Hive coordinator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("drone version %s\ncommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "", "Path to config directory")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to a Hive and start accepting tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, logLevel, err := config.LoadDrone(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: true})
		logger := log.WithWorkerID(cfg.WorkerID)

		runner := drone.NewStubRunner(int(cfg.MaxTasks))
		d := drone.New(cfg, runner, logger)

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			logger.Info().Msg("shutting down")
			cancel()
		}()

		logger.Info().Str("hive_addr", cfg.HiveAddr).Msg("drone starting")
		if err := d.Run(ctx); err != nil {
			return fmt.Errorf("drone exited: %w", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}
