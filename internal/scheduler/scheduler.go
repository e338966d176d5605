// Package scheduler implements the Scheduler (C11): per-region exclusive
// locking, UTC window checks, startup jitter, and pre-analyze -> analyze
// -> trade -> guard phase sequencing. Grounded on
// original_source/src/core/scheduler.py (window/lock/jitter helpers) and
// §4.11/§5's bitwise-or exit code and non-blocking rejection semantics.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/aristath/convertbot/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase names, matching the CLI's --phase flag values (§6).
const (
	PhasePreAnalyze = "pre-analyze"
	PhaseAnalyze    = "analyze"
	PhaseTrade      = "trade"
	PhaseGuard      = "guard"
)

var phaseOrder = []string{PhasePreAnalyze, PhaseAnalyze, PhaseTrade, PhaseGuard}

// PhaseFunc runs one phase of the cycle. A non-nil error marks that
// phase failed; per §4.11, failure of one phase never blocks the next.
type PhaseFunc func(ctx context.Context, correlationID string, dryRun bool) error

// Scheduler sequences phases for one region.
type Scheduler struct {
	region     config.RegionConfig
	jitterSec  int
	phases     map[string]PhaseFunc
	resetCycle func()
	log        zerolog.Logger
}

// New builds a Scheduler for region, wired with one PhaseFunc per phase
// name. Phases absent from the map are treated as a no-op success.
func New(region config.RegionConfig, jitterSec int, phases map[string]PhaseFunc, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		region:     region,
		jitterSec:  jitterSec,
		phases:     phases,
		resetCycle: func() {},
		log:        log.With().Str("component", "scheduler").Str("region", region.Name).Logger(),
	}
}

// SetResetFunc installs a hook run once at the start of every RunSequence
// or RunPhase call, before the lock's jitter sleep. Wired to the shared
// Binance client's ResetCycle so a long-lived Daemon ticking RunSequence
// repeatedly in one process clears the prior cycle's request/weight
// counters and idempotency shield before the next cycle starts.
func (s *Scheduler) SetResetFunc(fn func()) { s.resetCycle = fn }

// jitterStart sleeps a uniform random delay in [0, jitterSec] before any
// outbound call, returning the delay actually used.
func (s *Scheduler) jitterStart(ctx context.Context) time.Duration {
	if s.jitterSec <= 0 {
		return 0
	}
	delay := time.Duration(rand.Intn(s.jitterSec+1)) * time.Second
	s.log.Debug().Dur("jitter", delay).Msg("sleeping startup jitter")
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	return delay
}

// RunSequence acquires the region lock, sleeps the startup jitter, then
// runs every phase in order, combining their exit codes with bitwise-or.
// It returns a non-nil error only if the lock could not be acquired —
// that is the one condition where no phase runs at all.
func (s *Scheduler) RunSequence(ctx context.Context, dryRun bool) (exitCode int, err error) {
	unlock, err := acquireRegionLock(s.region.Name)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to acquire region lock")
		return 0, err
	}
	defer unlock()

	s.resetCycle()
	s.jitterStart(ctx)

	correlationID := uuid.NewString()
	log := s.log.With().Str("correlation_id", correlationID).Logger()

	code := 0
	for _, phase := range phaseOrder {
		phaseCode := s.runPhase(ctx, phase, correlationID, dryRun)
		code |= phaseCode
		log.Info().Str("phase", phase).Int("exit_code", phaseCode).Msg("phase complete")
	}
	return code, nil
}

// RunPhase runs a single named phase instead of the full sequence, for
// the CLI's `run --region R --phase P` single-phase invocation. The lock
// is still acquired, since a single-phase run must not overlap a
// full-sequence run for the same region, and the startup jitter still
// applies.
func (s *Scheduler) RunPhase(ctx context.Context, phase string, dryRun bool) (exitCode int, err error) {
	unlock, err := acquireRegionLock(s.region.Name)
	if err != nil {
		return 0, err
	}
	defer unlock()

	s.resetCycle()
	s.jitterStart(ctx)
	correlationID := uuid.NewString()
	return s.runPhase(ctx, phase, correlationID, dryRun), nil
}

// runPhase gates analyze/trade on their UTC windows (outside-window is a
// clean skip, exit code 0, not a failure) and always allows pre-analyze
// and guard to run, since guard must be able to trip regardless of
// window and pre-analyze is cheap read-only reconnaissance.
func (s *Scheduler) runPhase(ctx context.Context, phase, correlationID string, dryRun bool) int {
	now := time.Now()
	switch phase {
	case PhaseAnalyze:
		if !InAnalyzeWindow(s.region, now) {
			s.log.Debug().Str("phase", phase).Msg("outside analyze window, skipping")
			return 0
		}
	case PhaseTrade:
		if !InTradeWindow(s.region, now) {
			s.log.Debug().Str("phase", phase).Msg("outside trade window, skipping")
			return 0
		}
	}

	fn, ok := s.phases[phase]
	if !ok {
		return 0
	}
	if err := fn(ctx, correlationID, dryRun); err != nil {
		s.log.Error().Err(err).Str("phase", phase).Str("correlation_id", correlationID).Msg("phase failed")
		return 1
	}
	return 0
}
