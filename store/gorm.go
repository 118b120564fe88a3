package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salonpro-reminders/models"
)

// GormStore is the database-backed store. Soft-deleted rows are filtered
// explicitly with deleted_at IS NULL.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Tasks

func (s *GormStore) CreateTasks(ctx context.Context, tasks []*models.ScheduledReminderTask) error {
	if len(tasks) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Create(tasks).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) GetTask(ctx context.Context, id uuid.UUID) (*models.ScheduledReminderTask, error) {
	var task models.ScheduledReminderTask
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

// TransitionTask moves the task from one status to another only if it is
// still in from. It reports whether this call made the transition.
func (s *GormStore) TransitionTask(ctx context.Context, id uuid.UUID, from, to models.TaskStatus, errMsg string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledReminderTask{}).
		Where("id = ? AND status = ?", id, from).
		Updates(transitionFields(to, errMsg, s.now().UTC()))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) CancelAppointmentTasks(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.ScheduledReminderTask{}).
		Where("appointment_id = ? AND status = ?", appointmentID, models.TaskPending).
		Updates(transitionFields(models.TaskCancelled, "appointment cancelled or rescheduled", s.now().UTC()))
	return res.RowsAffected, res.Error
}

func (s *GormStore) ListTasksByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.ScheduledReminderTask, error) {
	var tasks []models.ScheduledReminderTask
	err := s.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("scheduled_at").
		Find(&tasks).Error
	return tasks, err
}

// ListOverduePending returns PENDING tasks scheduled before the cutoff,
// oldest first.
func (s *GormStore) ListOverduePending(ctx context.Context, before time.Time, limit int) ([]models.ScheduledReminderTask, error) {
	var tasks []models.ScheduledReminderTask
	q := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at < ?", models.TaskPending, before.UTC()).
		Order("scheduled_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tasks).Error
	return tasks, err
}

func (s *GormStore) ListPendingDueBefore(ctx context.Context, before time.Time) ([]models.ScheduledReminderTask, error) {
	var tasks []models.ScheduledReminderTask
	err := s.db.WithContext(ctx).
		Select("id", "scheduled_at").
		Where("status = ? AND scheduled_at <= ?", models.TaskPending, before.UTC()).
		Order("scheduled_at").
		Find(&tasks).Error
	return tasks, err
}

// Delivery logs

func (s *GormStore) CreateLog(ctx context.Context, l *models.SmsDeliveryLog) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *GormStore) UpdateLog(ctx context.Context, l *models.SmsDeliveryLog) error {
	return s.db.WithContext(ctx).
		Model(l).
		Select("status", "provider", "provider_message_id", "error_message", "raw_response", "sent_at", "updated_at").
		Updates(l).Error
}

func (s *GormStore) ListLogsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.SmsDeliveryLog, error) {
	var logs []models.SmsDeliveryLog
	err := s.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at").
		Find(&logs).Error
	return logs, err
}

// Appointments and reminder rules

func (s *GormStore) GetAppointment(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Branch").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&appt).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &appt, nil
}

func (s *GormStore) ListEnabledConfigs(ctx context.Context, businessID uuid.UUID) ([]models.ReminderConfig, error) {
	var configs []models.ReminderConfig
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND enabled = ? AND deleted_at IS NULL", businessID, true).
		Order("created_at").
		Find(&configs).Error
	return configs, err
}

// Businesses

func (s *GormStore) GetBusiness(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var b models.Business
	if err := s.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// MutateBusiness runs fn on the business row while holding a row lock. The
// subscription and credit columns fn changed are saved even when fn returns
// an error, and that error is returned after commit.
func (s *GormStore) MutateBusiness(ctx context.Context, id uuid.UUID, fn func(b *models.Business) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Business
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND deleted_at IS NULL", id).
			First(&b).Error
		if err != nil {
			return notFound(err)
		}

		before := b
		if b.NextCreditResetDate != nil {
			next := *b.NextCreditResetDate
			before.NextCreditResetDate = &next
		}
		fnErr = fn(&b)
		if !businessChanged(before, b) {
			return nil
		}
		b.UpdatedAt = s.now().UTC()
		return tx.Model(&b).
			Select("subscription_status", "free_sms_credits", "paid_sms_credits", "next_credit_reset_date", "updated_at").
			Updates(&b).Error
	})
	if err != nil {
		return err
	}
	return fnErr
}

func (s *GormStore) ListBusinessesDueForReset(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := s.db.WithContext(ctx).
		Model(&models.Business{}).
		Where("subscription_status = ? AND next_credit_reset_date <= ? AND deleted_at IS NULL", models.SubscriptionActive, now.UTC()).
		Order("next_credit_reset_date")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) ListResetSchedule(ctx context.Context) ([]ResetEntry, error) {
	var rows []models.Business
	err := s.db.WithContext(ctx).
		Select("id", "next_credit_reset_date").
		Where("subscription_status = ? AND next_credit_reset_date IS NOT NULL AND deleted_at IS NULL", models.SubscriptionActive).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ResetEntry, 0, len(rows))
	for _, b := range rows {
		out = append(out, ResetEntry{BusinessID: b.ID, NextCreditResetDate: *b.NextCreditResetDate})
	}
	return out, nil
}

func businessChanged(a, b models.Business) bool {
	return a.SubscriptionStatus != b.SubscriptionStatus ||
		a.FreeSmsCredits != b.FreeSmsCredits ||
		a.PaidSmsCredits != b.PaidSmsCredits ||
		!sameTime(a.NextCreditResetDate, b.NextCreditResetDate)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
