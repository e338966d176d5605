package main

import (
	"context"
	"fmt"

	"github.com/aristath/convertbot/internal/config"
	"github.com/aristath/convertbot/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	runRegion string
	runPhase  string
	runAll    bool
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scheduler phase, or the full phase sequence, for a region",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runRegion == "" {
			return fmt.Errorf("--region is required")
		}
		region, ok := container.Config.Regions[runRegion]
		if !ok {
			return fmt.Errorf("unknown region %q", runRegion)
		}
		dryRun := container.Config.DryRun
		if cmd.Flags().Changed("dry-run") {
			dryRun = runDryRun
		}

		sched := container.NewScheduler(region, phaseFuncs(region))

		if runAll {
			code, err := sched.RunSequence(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			if code != 0 {
				return fmt.Errorf("one or more phases failed (exit code %d)", code)
			}
			return nil
		}

		if runPhase == "" {
			return fmt.Errorf("--phase is required unless --all is set")
		}
		code, err := sched.RunPhase(cmd.Context(), runPhase, dryRun)
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("phase %q failed", runPhase)
		}
		return nil
	},
}

// phaseFuncs adapts the phase implementations in phases.go to
// scheduler.PhaseFunc's (ctx, correlationID, dryRun) signature.
func phaseFuncs(region config.RegionConfig) map[string]scheduler.PhaseFunc {
	wrap := func(name string, fn func(phaseContext) error) scheduler.PhaseFunc {
		return func(ctx context.Context, correlationID string, dryRun bool) error {
			pc := phaseContext{
				ctx:    ctx,
				region: region,
				dryRun: dryRun,
				log:    log.With().Str("phase", name).Str("correlation_id", correlationID).Str("region", region.Name).Logger(),
			}
			return fn(pc)
		}
	}
	return map[string]scheduler.PhaseFunc{
		scheduler.PhasePreAnalyze: wrap(scheduler.PhasePreAnalyze, runPreAnalyze),
		scheduler.PhaseAnalyze:    wrap(scheduler.PhaseAnalyze, runAnalyze),
		scheduler.PhaseTrade:      wrap(scheduler.PhaseTrade, runTrade),
		scheduler.PhaseGuard:      wrap(scheduler.PhaseGuard, runGuard),
	}
}

func init() {
	runCmd.Flags().StringVar(&runRegion, "region", "", "region to run (asia or us)")
	runCmd.Flags().StringVar(&runPhase, "phase", "", "phase to run (pre-analyze, analyze, trade, guard)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "run the full pre-analyze -> analyze -> trade -> guard sequence")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "override the DRY_RUN configuration for this run")
}
