package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"salonpro-reminders/models"
	"salonpro-reminders/queue"
	"salonpro-reminders/store"
)

// CreditResetter drives monthly free-credit resets. The reset queue holds one
// item per business due at its next reset date; the scan catches businesses
// whose item was lost.
type CreditResetter struct {
	guard *CreditGuard
	store BusinessStore
	queue queue.Queue
	batch int
	now   func() time.Time
	log   zerolog.Logger
}

func NewCreditResetter(guard *CreditGuard, s BusinessStore, q queue.Queue, batch int, log zerolog.Logger) *CreditResetter {
	if batch <= 0 {
		batch = 200
	}
	return &CreditResetter{
		guard: guard,
		store: s,
		queue: q,
		batch: batch,
		now:   time.Now,
		log:   log.With().Str("comp", "credit_reset").Logger(),
	}
}

// Handle is the reset queue handler. It refreshes the business and queues
// its following reset.
func (r *CreditResetter) Handle(ctx context.Context, id string) error {
	businessID, err := uuid.Parse(id)
	if err != nil {
		r.log.Warn().Str("item", id).Msg("dropping reset item with invalid business id")
		return nil
	}
	return r.reset(ctx, businessID)
}

func (r *CreditResetter) reset(ctx context.Context, businessID uuid.UUID) error {
	b, err := r.guard.CheckAndRefresh(ctx, businessID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh business %s: %w", businessID, err)
	}
	if b.SubscriptionStatus != models.SubscriptionActive || b.NextCreditResetDate == nil {
		return nil
	}
	return r.queue.Push(ctx, queue.Item{ID: b.ID.String(), DueAt: *b.NextCreditResetDate})
}

// Scan resets every active business whose reset date has passed.
func (r *CreditResetter) Scan(ctx context.Context) (int, error) {
	ids, err := r.store.ListBusinessesDueForReset(ctx, r.now(), r.batch)
	if err != nil {
		return 0, fmt.Errorf("list businesses due for reset: %w", err)
	}
	n := 0
	for _, id := range ids {
		if err := r.reset(ctx, id); err != nil {
			r.log.Error().Err(err).Str("business_id", id.String()).Msg("credit reset failed")
			continue
		}
		n++
	}
	if n > 0 {
		r.log.Info().Int("businesses", n).Msg("credit reset scan")
	}
	return n, nil
}

// HydrateResets queues the next reset of every active business.
func (r *CreditResetter) HydrateResets(ctx context.Context) (int, error) {
	entries, err := r.store.ListResetSchedule(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reset schedule: %w", err)
	}
	for _, e := range entries {
		if err := r.queue.Push(ctx, queue.Item{ID: e.BusinessID.String(), DueAt: e.NextCreditResetDate}); err != nil {
			return 0, fmt.Errorf("queue reset for %s: %w", e.BusinessID, err)
		}
	}
	r.log.Info().Int("businesses", len(entries)).Msg("reset queue hydrated")
	return len(entries), nil
}
