// Package jobs runs the gateway's periodic maintenance: retention
// sweeps over uploaded files and reachability probes of the upstream
// providers.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
)

// Sweeper removes expired file records and blobs.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Prober checks upstream provider reachability.
type Prober interface {
	ProbeAll(ctx context.Context)
}

// jobTimeout bounds one scheduled run.
const jobTimeout = 5 * time.Minute

// Scheduler wires the periodic jobs onto a cron table.
type Scheduler struct {
	cfg     *config.Config
	sweeper Sweeper
	prober  Prober
	log     zerolog.Logger
	ctab    *crontab.Crontab
}

func NewScheduler(cfg *config.Config, sweeper Sweeper, prober Prober, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		sweeper: sweeper,
		prober:  prober,
		log:     log.With().Str("component", "job-scheduler").Logger(),
	}
}

// Start registers the jobs and runs the provider probe once so the
// first availability snapshot is grounded.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctab = crontab.New()

	sweepEvery := s.cfg.RetentionSweepMinutes
	if sweepEvery <= 0 {
		sweepEvery = 10
	}
	if err := s.ctab.AddJob(everyMinutes(sweepEvery), func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}

	if s.cfg.ProviderProbeEnabled && s.prober != nil {
		probeEvery := s.cfg.ProviderProbeMinutes
		if probeEvery <= 0 {
			probeEvery = 1
		}
		if err := s.ctab.AddJob(everyMinutes(probeEvery), func() { s.probe(ctx) }); err != nil {
			return fmt.Errorf("schedule provider probe: %w", err)
		}
		go s.probe(ctx)
	}

	s.log.Info().
		Int("sweep_minutes", sweepEvery).
		Bool("probe_enabled", s.cfg.ProviderProbeEnabled).
		Msg("background jobs scheduled")
	return nil
}

// Stop clears the cron table.
func (s *Scheduler) Stop() {
	if s.ctab != nil {
		s.ctab.Clear()
	}
}

func (s *Scheduler) sweep(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	removed, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("retention sweep removed expired files")
	}
}

func (s *Scheduler) probe(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()
	s.prober.ProbeAll(ctx)
}

func everyMinutes(n int) string {
	if n >= 60 {
		return "0 * * * *"
	}
	return fmt.Sprintf("*/%d * * * *", n)
}
