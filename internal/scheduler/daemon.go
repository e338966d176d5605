package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Daemon runs a Scheduler's full sequence on a fixed cron schedule,
// for deployments that run one long-lived process per region instead of
// invoking the CLI's `run` subcommand from an external scheduler. The
// underlying RunSequence call still does its own window/lock/jitter
// handling per tick, so a tick landing outside both windows runs only
// pre-analyze and guard and skips analyze and trade.
type Daemon struct {
	sched  *Scheduler
	cron   *cron.Cron
	dryRun bool
	log    zerolog.Logger
}

// NewDaemon builds a Daemon that ticks sched's RunSequence on spec (a
// standard 5-field cron expression, e.g. "*/5 * * * *" for every five
// minutes).
func NewDaemon(sched *Scheduler, spec string, dryRun bool, log zerolog.Logger) (*Daemon, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	d := &Daemon{sched: sched, cron: c, dryRun: dryRun, log: log.With().Str("component", "scheduler-daemon").Logger()}

	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		code, err := sched.RunSequence(ctx, dryRun)
		if err != nil {
			d.log.Error().Err(err).Msg("scheduled run failed to start")
			return
		}
		d.log.Info().Int("exit_code", code).Msg("scheduled run complete")
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Start begins the cron loop in the background.
func (d *Daemon) Start() { d.cron.Start() }

// Stop halts the cron loop, waiting for any in-flight run to finish.
func (d *Daemon) Stop() { <-d.cron.Stop().Done() }
