package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RecoveryScanner re-runs PENDING tasks whose due time passed more than a
// grace period ago. It covers queue items lost to a crash or restart.
type RecoveryScanner struct {
	store     TaskStore
	processor *ReminderProcessor
	grace     time.Duration
	batch     int
	now       func() time.Time
	log       zerolog.Logger
}

func NewRecoveryScanner(s TaskStore, p *ReminderProcessor, grace time.Duration, batch int, log zerolog.Logger) *RecoveryScanner {
	if batch <= 0 {
		batch = 200
	}
	return &RecoveryScanner{
		store:     s,
		processor: p,
		grace:     grace,
		batch:     batch,
		now:       time.Now,
		log:       log.With().Str("comp", "recovery").Logger(),
	}
}

// Scan processes one batch of overdue tasks and reports how many it ran.
func (r *RecoveryScanner) Scan(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.grace)
	tasks, err := r.store.ListOverduePending(ctx, cutoff, r.batch)
	if err != nil {
		return 0, fmt.Errorf("list overdue tasks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	r.log.Warn().Int("tasks", len(tasks)).Time("cutoff", cutoff).Msg("recovering overdue reminders")
	for _, t := range tasks {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := r.processor.Process(ctx, t.ID); err != nil {
			r.log.Error().Err(err).Str("task_id", t.ID.String()).Msg("recovery processing failed")
		}
	}
	return len(tasks), nil
}
