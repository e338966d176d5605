// Command convertbot is the entry point for the Binance Convert
// rebalancing automation: an `info`/`quote`/`now`/`status`/`trades`
// operator toolkit, the `run` subcommand that drives one scheduler phase
// (or the full pre-analyze -> analyze -> trade -> guard sequence) for a
// region, and `serve` for the optional long-running status HTTP surface
// and backup loop.
package main

import (
	"fmt"
	"os"

	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/di"
	"github.com/aristath/convertbot/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var container *di.Container
var log zerolog.Logger

var rootCmd = &cobra.Command{
	Use:   "convertbot",
	Short: "Binance Convert asset-rebalancing automation",
	Long:  "convertbot drives the Binance Convert facility through an analyze/rank/plan/execute/guard cycle, scheduled per region.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

		container, err = di.Wire(cfg, log)
		if err != nil {
			return fmt.Errorf("wire dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if container != nil {
			_ = container.Close()
		}
	},
}

func main() {
	rootCmd.AddCommand(infoCmd, quoteCmd, nowCmd, statusCmd, tradesCmd, runCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
