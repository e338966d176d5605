package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/convertbot/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status HTTP server, periodic backup loop, and per-region cron daemons until stopped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := container.NewHTTPServer()

		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("status http server stopped")
			}
		}()

		backupCtx, cancelBackup := context.WithCancel(context.Background())
		defer cancelBackup()
		if container.Backup != nil {
			go runBackupLoop(backupCtx, container.Config.Backup.Interval)
		}

		daemons, err := startRegionDaemons()
		if err != nil {
			return err
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info().Msg("shutting down")
		cancelBackup()
		for _, d := range daemons {
			d.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// startRegionDaemons builds and starts one scheduler.Daemon per configured
// region, the in-process alternative to an external cron invoking `run`
// per phase. Each daemon ticks its region's full pre-analyze -> analyze ->
// trade -> guard sequence on container.Config.SchedulerCron; on a tick
// outside the windows RunSequence still takes the lock, sleeps the jitter
// and runs pre-analyze and guard, skipping only analyze and trade.
func startRegionDaemons() ([]*scheduler.Daemon, error) {
	daemons := make([]*scheduler.Daemon, 0, len(container.Config.Regions))
	for _, region := range container.Config.Regions {
		sched := container.NewScheduler(region, phaseFuncs(region))
		d, err := scheduler.NewDaemon(sched, container.Config.SchedulerCron, container.Config.DryRun, log)
		if err != nil {
			return nil, err
		}
		d.Start()
		daemons = append(daemons, d)
		log.Info().Str("region", region.Name).Str("cron", container.Config.SchedulerCron).Msg("region daemon started")
	}
	return daemons, nil
}

// runBackupLoop runs the backup service on a fixed interval until ctx is
// cancelled. A failed backup is logged and retried on the next tick rather
// than stopping the loop, since a transient upload failure shouldn't take
// down the status server alongside it.
func runBackupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := container.Backup.Run(ctx); err != nil {
				log.Error().Err(err).Msg("backup run failed")
			}
		}
	}
}
