package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"salonpro-reminders/models"
	"salonpro-reminders/utils"
)

var (
	ErrInsufficientCredits  = errors.New("insufficient sms credits")
	ErrSubscriptionInactive = errors.New("subscription is not active")
)

// DefaultMonthlyCredits is the free SMS allotment granted at each reset.
const DefaultMonthlyCredits = 100

// RequireActiveSubscription is the gate for every credit-consuming
// operation. A subscription past its end date counts as inactive even
// before lazy expiry has flipped its status.
func RequireActiveSubscription(b *models.Business, now time.Time) error {
	if b.SubscriptionStatus != models.SubscriptionActive {
		return fmt.Errorf("%w: status %s", ErrSubscriptionInactive, b.SubscriptionStatus)
	}
	if b.SubscriptionEndDate != nil && !b.SubscriptionEndDate.After(now) {
		return fmt.Errorf("%w: ended %s", ErrSubscriptionInactive, b.SubscriptionEndDate.Format(time.RFC3339))
	}
	return nil
}

// CreditGuard owns every mutation of the business credit counters.
type CreditGuard struct {
	store     BusinessStore
	allotment int
	now       func() time.Time
	log       zerolog.Logger
}

func NewCreditGuard(s BusinessStore, monthlyCredits int, log zerolog.Logger) *CreditGuard {
	if monthlyCredits <= 0 {
		monthlyCredits = DefaultMonthlyCredits
	}
	return &CreditGuard{
		store:     s,
		allotment: monthlyCredits,
		now:       time.Now,
		log:       log.With().Str("comp", "credits").Logger(),
	}
}

// ConsumeCredit takes one credit from the business, free credits first.
func (g *CreditGuard) ConsumeCredit(ctx context.Context, businessID uuid.UUID) error {
	now := g.now()
	return g.store.MutateBusiness(ctx, businessID, func(b *models.Business) error {
		g.refresh(b, now)
		if err := RequireActiveSubscription(b, now); err != nil {
			return err
		}
		switch {
		case b.FreeSmsCredits > 0:
			b.FreeSmsCredits--
		case b.PaidSmsCredits > 0:
			b.PaidSmsCredits--
		default:
			return ErrInsufficientCredits
		}
		return nil
	})
}

// CheckAndRefresh applies lazy expiry and the monthly reset without
// consuming anything, and returns the business as saved.
func (g *CreditGuard) CheckAndRefresh(ctx context.Context, businessID uuid.UUID) (*models.Business, error) {
	now := g.now()
	var out models.Business
	err := g.store.MutateBusiness(ctx, businessID, func(b *models.Business) error {
		g.refresh(b, now)
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *CreditGuard) refresh(b *models.Business, now time.Time) {
	if b.SubscriptionStatus == models.SubscriptionActive &&
		b.SubscriptionEndDate != nil && !b.SubscriptionEndDate.After(now) {
		b.SubscriptionStatus = models.SubscriptionExpired
		b.FreeSmsCredits = 0
		g.log.Info().Str("business_id", b.ID.String()).Msg("subscription expired")
	}

	if b.SubscriptionStatus == models.SubscriptionActive &&
		b.NextCreditResetDate != nil && !b.NextCreditResetDate.After(now) {
		next, months := utils.AdvanceMonthly(*b.NextCreditResetDate, now)
		b.FreeSmsCredits = g.allotment
		b.NextCreditResetDate = &next
		g.log.Info().
			Str("business_id", b.ID.String()).
			Int("months", months).
			Time("next_reset", next).
			Msg("free credits reset")
	}
}
