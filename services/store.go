package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonpro-reminders/models"
	"salonpro-reminders/store"
)

// TaskStore persists scheduled reminder tasks.
type TaskStore interface {
	CreateTasks(ctx context.Context, tasks []*models.ScheduledReminderTask) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.ScheduledReminderTask, error)
	// TransitionTask is a compare-and-set on status; it reports whether
	// this call made the change.
	TransitionTask(ctx context.Context, id uuid.UUID, from, to models.TaskStatus, errMsg string) (bool, error)
	CancelAppointmentTasks(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	ListTasksByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.ScheduledReminderTask, error)
	ListOverduePending(ctx context.Context, before time.Time, limit int) ([]models.ScheduledReminderTask, error)
	ListPendingDueBefore(ctx context.Context, before time.Time) ([]models.ScheduledReminderTask, error)
}

type DeliveryLogStore interface {
	CreateLog(ctx context.Context, l *models.SmsDeliveryLog) error
	UpdateLog(ctx context.Context, l *models.SmsDeliveryLog) error
	ListLogsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.SmsDeliveryLog, error)
}

// AppointmentReader is the read side of the CRUD layer's booking tables.
type AppointmentReader interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	ListEnabledConfigs(ctx context.Context, businessID uuid.UUID) ([]models.ReminderConfig, error)
}

type BusinessStore interface {
	GetBusiness(ctx context.Context, id uuid.UUID) (*models.Business, error)
	// MutateBusiness runs fn under a row lock and saves what fn changed,
	// even when fn returns an error.
	MutateBusiness(ctx context.Context, id uuid.UUID, fn func(b *models.Business) error) error
	ListBusinessesDueForReset(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListResetSchedule(ctx context.Context) ([]store.ResetEntry, error)
}

// Store is everything the reminder engine persists or reads.
type Store interface {
	TaskStore
	DeliveryLogStore
	AppointmentReader
	BusinessStore
	Ping(ctx context.Context) error
}

var (
	_ Store = (*store.GormStore)(nil)
	_ Store = (*store.Memory)(nil)
)
