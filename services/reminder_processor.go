package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"salonpro-reminders/models"
	"salonpro-reminders/sms"
	"salonpro-reminders/store"
	"salonpro-reminders/utils"
)

// staleTolerance absorbs sub-minute drift between a task's stored due time
// and one recomputed from the appointment.
const staleTolerance = time.Minute

// ReminderProcessor runs a single task through validation, claim, credit
// consumption and delivery. It is safe to call concurrently for the same
// task id; the PENDING to PROCESSING transition lets only one caller send.
type ReminderProcessor struct {
	store    Store
	guard    *CreditGuard
	provider sms.Provider
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

func NewReminderProcessor(s Store, guard *CreditGuard, provider sms.Provider, defaultLoc *time.Location, log zerolog.Logger) *ReminderProcessor {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &ReminderProcessor{
		store:    s,
		guard:    guard,
		provider: provider,
		loc:      defaultLoc,
		now:      time.Now,
		log:      log.With().Str("comp", "processor").Logger(),
	}
}

// Handle adapts Process to the dispatcher's string ids.
func (p *ReminderProcessor) Handle(ctx context.Context, id string) error {
	taskID, err := uuid.Parse(id)
	if err != nil {
		p.log.Warn().Str("item", id).Msg("dropping queue item with invalid task id")
		return nil
	}
	return p.Process(ctx, taskID)
}

// Process never fails on business outcomes; those are recorded on the task
// and its delivery log. Returned errors are infrastructure failures.
func (p *ReminderProcessor) Process(ctx context.Context, taskID uuid.UUID) error {
	task, err := p.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		p.log.Warn().Str("task_id", taskID.String()).Msg("task not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.Status != models.TaskPending {
		return nil
	}

	log := p.log.With().
		Str("task_id", task.ID.String()).
		Str("appointment_id", task.AppointmentID.String()).
		Str("business_id", task.BusinessID.String()).
		Logger()

	appt, err := p.store.GetAppointment(ctx, task.AppointmentID)
	if errors.Is(err, store.ErrNotFound) {
		return p.settle(ctx, log, task, models.TaskFailed, "appointment not found")
	}
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.Inactive() {
		return p.settle(ctx, log, task, models.TaskCancelled, "appointment "+string(appt.Status))
	}
	if !appt.RemindersEnabled {
		return p.settle(ctx, log, task, models.TaskSkipped, "reminders disabled")
	}

	now := p.now()
	expected := appt.StartDateTime.Add(-time.Duration(task.LeadTimeMinutes) * time.Minute)
	if drift := expected.Sub(task.ScheduledAt).Abs(); drift >= staleTolerance {
		return p.settle(ctx, log, task, models.TaskSkipped, "stale: appointment was rescheduled")
	}
	if !appt.StartDateTime.After(now) {
		return p.settle(ctx, log, task, models.TaskSkipped, "appointment already started")
	}

	biz, err := p.store.GetBusiness(ctx, task.BusinessID)
	if errors.Is(err, store.ErrNotFound) {
		return p.settle(ctx, log, task, models.TaskFailed, "business not found")
	}
	if err != nil {
		return fmt.Errorf("load business: %w", err)
	}
	if err := RequireActiveSubscription(biz, now); err != nil {
		return p.settle(ctx, log, task, models.TaskFailed, err.Error())
	}

	claimed, err := p.store.TransitionTask(ctx, task.ID, models.TaskPending, models.TaskProcessing, "")
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	if !claimed {
		log.Debug().Msg("task claimed elsewhere")
		return nil
	}

	// The task is ours now; finish it even if the handler deadline passes.
	fctx := context.WithoutCancel(ctx)

	message, err := p.render(ctx, task, appt, biz)
	if err != nil {
		p.complete(fctx, log, task, models.TaskFailed, "render message: "+err.Error())
		return err
	}

	entry := models.NewSmsDeliveryLog(task, appt.Customer.Phone, message)
	entry.Provider = p.provider.Name()
	if err := p.store.CreateLog(fctx, entry); err != nil {
		p.complete(fctx, log, task, models.TaskFailed, "create delivery log: "+err.Error())
		return fmt.Errorf("create delivery log: %w", err)
	}

	if err := p.guard.ConsumeCredit(fctx, biz.ID); err != nil {
		entry.Status = models.DeliveryFailed
		entry.ErrorMessage = err.Error()
		p.updateLog(fctx, log, entry)
		p.complete(fctx, log, task, models.TaskFailed, err.Error())
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrSubscriptionInactive) {
			return nil
		}
		return fmt.Errorf("consume credit: %w", err)
	}

	res := p.provider.Send(ctx, appt.Customer.Phone, message)

	entry.RawResponse = res.Raw
	entry.ProviderMessageID = res.ProviderID
	if res.Success {
		sentAt := p.now().UTC()
		entry.Status = models.DeliverySent
		entry.SentAt = &sentAt
		p.updateLog(fctx, log, entry)
		p.complete(fctx, log, task, models.TaskCompleted, "")
		log.Info().Str("provider_id", res.ProviderID).Msg("reminder sent")
		return nil
	}

	entry.Status = models.DeliveryFailed
	entry.ErrorMessage = res.Error
	p.updateLog(fctx, log, entry)
	p.complete(fctx, log, task, models.TaskFailed, res.Error)
	log.Warn().Bool("uncertain", res.Uncertain).Str("error", res.Error).Msg("reminder send failed")
	return nil
}

// settle moves a task that was never claimed straight to a terminal status.
func (p *ReminderProcessor) settle(ctx context.Context, log zerolog.Logger, task *models.ScheduledReminderTask, to models.TaskStatus, reason string) error {
	ok, err := p.store.TransitionTask(ctx, task.ID, models.TaskPending, to, reason)
	if err != nil {
		return fmt.Errorf("mark task %s: %w", to, err)
	}
	if ok {
		log.Info().Str("status", string(to)).Str("reason", reason).Msg("task settled")
	}
	return nil
}

func (p *ReminderProcessor) complete(ctx context.Context, log zerolog.Logger, task *models.ScheduledReminderTask, to models.TaskStatus, reason string) {
	ok, err := p.store.TransitionTask(ctx, task.ID, models.TaskProcessing, to, reason)
	if err != nil {
		log.Error().Err(err).Str("status", string(to)).Msg("finalize task failed")
		return
	}
	if !ok {
		log.Warn().Str("status", string(to)).Msg("task left PROCESSING before finalize")
	}
}

func (p *ReminderProcessor) updateLog(ctx context.Context, log zerolog.Logger, entry *models.SmsDeliveryLog) {
	if err := p.store.UpdateLog(ctx, entry); err != nil {
		log.Error().Err(err).Str("log_id", entry.ID.String()).Msg("finalize delivery log failed")
	}
}

// render picks the enabled rule matching the task's lead time, then the
// first enabled rule, then the built-in default.
func (p *ReminderProcessor) render(ctx context.Context, task *models.ScheduledReminderTask, appt *models.Appointment, biz *models.Business) (string, error) {
	configs, err := p.store.ListEnabledConfigs(ctx, task.BusinessID)
	if err != nil {
		return "", err
	}
	tmpl := utils.DefaultReminderTemplate
	if len(configs) > 0 {
		tmpl = configs[0].MessageTemplate
		for _, c := range configs {
			if c.LeadTimeMinutes == task.LeadTimeMinutes {
				tmpl = c.MessageTemplate
				break
			}
		}
	}
	return utils.RenderReminder(tmpl, utils.ReminderData{
		CustomerName: appt.Customer.Name,
		BranchName:   appt.Branch.Name,
		Start:        appt.StartDateTime,
	}, biz.Location(p.loc)), nil
}
