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

// ReminderScheduler turns appointment state into persisted tasks and queue
// items. The task row is the source of truth; the queue only times delivery.
type ReminderScheduler struct {
	store Store
	queue queue.Queue
	now   func() time.Time
	log   zerolog.Logger
}

func NewReminderScheduler(s Store, q queue.Queue, log zerolog.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		store: s,
		queue: q,
		now:   time.Now,
		log:   log.With().Str("comp", "scheduler").Logger(),
	}
}

// Schedule creates one PENDING task per distinct lead time whose send time
// is still in the future, and returns them. Slots that already hold a
// PENDING task are left alone, so repeating the call sends nothing twice.
func (s *ReminderScheduler) Schedule(ctx context.Context, appointmentID uuid.UUID) ([]*models.ScheduledReminderTask, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment %s: %w", appointmentID, err)
	}
	if !appt.RemindersEnabled || appt.IsWalkIn || appt.Inactive() {
		return nil, nil
	}

	leads, err := s.leadTimes(ctx, appt)
	if err != nil {
		return nil, err
	}

	pending, err := s.pendingSlots(ctx, appt.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var tasks []*models.ScheduledReminderTask
	for _, lead := range leads {
		at := appt.StartDateTime.Add(-time.Duration(lead) * time.Minute)
		if !at.After(now) || pending[slot{lead, at.UnixMicro()}] {
			continue
		}
		tasks = append(tasks, models.NewScheduledReminderTask(appt.BusinessID, appt.ID, at, lead))
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	if err := s.store.CreateTasks(ctx, tasks); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.log.Info().Str("appointment_id", appt.ID.String()).Msg("reminders already scheduled concurrently")
			return nil, nil
		}
		return nil, fmt.Errorf("save reminder tasks: %w", err)
	}

	for _, t := range tasks {
		s.enqueue(ctx, t)
	}
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Int("tasks", len(tasks)).
		Msg("reminders scheduled")
	return tasks, nil
}

type slot struct {
	lead int
	at   int64
}

func (s *ReminderScheduler) pendingSlots(ctx context.Context, appointmentID uuid.UUID) (map[slot]bool, error) {
	existing, err := s.store.ListTasksByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load existing reminders: %w", err)
	}
	slots := make(map[slot]bool, len(existing))
	for _, t := range existing {
		if t.Status == models.TaskPending {
			slots[slot{t.LeadTimeMinutes, t.ScheduledAt.UnixMicro()}] = true
		}
	}
	return slots, nil
}

func (s *ReminderScheduler) leadTimes(ctx context.Context, appt *models.Appointment) ([]int, error) {
	if appt.ReminderLeadTimeMinutes != nil {
		return []int{*appt.ReminderLeadTimeMinutes}, nil
	}
	configs, err := s.store.ListEnabledConfigs(ctx, appt.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("load reminder rules: %w", err)
	}
	seen := make(map[int]bool, len(configs))
	var leads []int
	for _, c := range configs {
		if seen[c.LeadTimeMinutes] {
			continue
		}
		seen[c.LeadTimeMinutes] = true
		leads = append(leads, c.LeadTimeMinutes)
	}
	return leads, nil
}

// enqueue failures are only logged; the recovery scan picks the task up
// once it is overdue.
func (s *ReminderScheduler) enqueue(ctx context.Context, t *models.ScheduledReminderTask) {
	if err := s.queue.Push(ctx, queue.Item{ID: t.ID.String(), DueAt: t.ScheduledAt}); err != nil {
		s.log.Warn().Err(err).Str("task_id", t.ID.String()).Msg("enqueue failed, leaving task to recovery")
	}
}

// Cancel marks every PENDING task of the appointment CANCELLED. Queue items
// stay where they are and are dropped when popped.
func (s *ReminderScheduler) Cancel(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	n, err := s.store.CancelAppointmentTasks(ctx, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders for %s: %w", appointmentID, err)
	}
	if n > 0 {
		s.log.Info().Str("appointment_id", appointmentID.String()).Int64("tasks", n).Msg("reminders cancelled")
	}
	return n, nil
}

// Reschedule replaces the appointment's pending tasks after a time change.
func (s *ReminderScheduler) Reschedule(ctx context.Context, appointmentID uuid.UUID) ([]*models.ScheduledReminderTask, error) {
	if _, err := s.Cancel(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.Schedule(ctx, appointmentID)
}

// Hydrate pushes PENDING tasks due within horizon back onto the queue.
func (s *ReminderScheduler) Hydrate(ctx context.Context, horizon time.Duration) (int, error) {
	tasks, err := s.store.ListPendingDueBefore(ctx, s.now().Add(horizon))
	if err != nil {
		return 0, fmt.Errorf("list pending tasks: %w", err)
	}
	for i := range tasks {
		s.enqueue(ctx, &tasks[i])
	}
	s.log.Info().Int("tasks", len(tasks)).Dur("horizon", horizon).Msg("reminder queue hydrated")
	return len(tasks), nil
}

// History returns the appointment's tasks and delivery logs.
func (s *ReminderScheduler) History(ctx context.Context, appointmentID uuid.UUID) ([]models.ScheduledReminderTask, []models.SmsDeliveryLog, error) {
	tasks, err := s.store.ListTasksByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.store.ListLogsByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	return tasks, entries, nil
}
