// services/reminder_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type JobConfig struct {
	RecoveryInterval time.Duration
	CreditResetScan  time.Duration
	// HydrateHorizon is how far ahead PENDING tasks are pushed onto the
	// queue. The push repeats every half horizon.
	HydrateHorizon time.Duration
	// Location for cron schedules; nil means UTC.
	Location *time.Location
}

// ReminderService runs the periodic scans. Each job skips a tick while its
// previous run is still going, so scans never overlap.
type ReminderService struct {
	cron      *cron.Cron
	ctx       context.Context
	scheduler *ReminderScheduler
	recovery  *RecoveryScanner
	resets    *CreditResetter
	horizon   time.Duration
	log       zerolog.Logger
}

func NewReminderService(scheduler *ReminderScheduler, recovery *RecoveryScanner, resets *CreditResetter, cfg JobConfig, log zerolog.Logger) (*ReminderService, error) {
	log = log.With().Str("comp", "jobs").Logger()
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	clog := cronLogger{log: log}
	s := &ReminderService{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		ctx:       context.Background(),
		scheduler: scheduler,
		recovery:  recovery,
		resets:    resets,
		log:       log,
	}

	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = 5 * time.Minute
	}
	if cfg.CreditResetScan <= 0 {
		cfg.CreditResetScan = time.Hour
	}
	if cfg.HydrateHorizon < 2*time.Minute {
		cfg.HydrateHorizon = 24 * time.Hour
	}
	s.horizon = cfg.HydrateHorizon
	if _, err := s.cron.AddFunc(every(cfg.HydrateHorizon/2), s.RunHydrate); err != nil {
		return nil, fmt.Errorf("add queue hydration: %w", err)
	}
	if _, err := s.cron.AddFunc(every(cfg.RecoveryInterval), s.RunRecovery); err != nil {
		return nil, fmt.Errorf("add recovery scan: %w", err)
	}
	if _, err := s.cron.AddFunc(every(cfg.CreditResetScan), s.RunCreditResets); err != nil {
		return nil, fmt.Errorf("add credit reset scan: %w", err)
	}
	return s, nil
}

func every(d time.Duration) string { return "@every " + d.String() }

// StartScheduler starts the cron loop. Scans run with ctx.
func (s *ReminderService) StartScheduler(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("reminder scheduler started")
}

// Stop waits for running jobs to return.
func (s *ReminderService) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("reminder scheduler stopped")
}

// RunHydrate pushes PENDING tasks that have come inside the horizon onto
// the queue. Items already queued keep their single entry.
func (s *ReminderService) RunHydrate() {
	if _, err := s.scheduler.Hydrate(s.ctx, s.horizon); err != nil {
		s.log.Error().Err(err).Msg("queue hydration failed")
	}
}

func (s *ReminderService) RunRecovery() {
	n, err := s.recovery.Scan(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("recovery scan failed")
		return
	}
	s.log.Debug().Int("tasks", n).Msg("recovery scan done")
}

func (s *ReminderService) RunCreditResets() {
	if _, err := s.resets.Scan(s.ctx); err != nil {
		s.log.Error().Err(err).Msg("credit reset scan failed")
	}
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
