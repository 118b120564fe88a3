// Package store persists reminder tasks, delivery logs and the business
// credit counters. GormStore is the production implementation; Memory backs
// the service and handler tests.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"salonpro-reminders/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate means a PENDING task already holds the same appointment,
	// lead time and send time.
	ErrDuplicate = errors.New("duplicate pending reminder")
)

// ResetEntry is a business's next monthly credit reset.
type ResetEntry struct {
	BusinessID          uuid.UUID
	NextCreditResetDate time.Time
}

// transitionFields returns the columns written when a task moves to status to.
func transitionFields(to models.TaskStatus, errMsg string, now time.Time) map[string]any {
	fields := map[string]any{
		"status":        to,
		"error_message": errMsg,
		"updated_at":    now,
	}
	if to.Terminal() {
		fields["processed_at"] = now
	}
	return fields
}

type slotKey struct {
	appointmentID uuid.UUID
	lead          int
	at            int64
}

func pendingSlot(t *models.ScheduledReminderTask) slotKey {
	return slotKey{appointmentID: t.AppointmentID, lead: t.LeadTimeMinutes, at: t.ScheduledAt.UnixMicro()}
}
