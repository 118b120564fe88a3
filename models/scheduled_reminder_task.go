package models

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
	TaskCancelled  TaskStatus = "CANCELLED"
	TaskSkipped    TaskStatus = "SKIPPED"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskSkipped:
		return true
	}
	return false
}

// ScheduledReminderTask is one reminder SMS due at ScheduledAt. Rows are never
// deleted; terminal rows stay for audit and idempotency checks. At most one
// PENDING row may exist per appointment, lead time and send time.
type ScheduledReminderTask struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key"`
	BusinessID      uuid.UUID  `gorm:"type:uuid;index;not null"`
	AppointmentID   uuid.UUID  `gorm:"type:uuid;index;not null;uniqueIndex:idx_reminder_pending_slot,priority:1,where:status = 'PENDING'"`
	ScheduledAt     time.Time  `gorm:"not null;index:idx_reminder_status_scheduled,priority:2;uniqueIndex:idx_reminder_pending_slot,priority:3,where:status = 'PENDING'"`
	LeadTimeMinutes int        `gorm:"not null;uniqueIndex:idx_reminder_pending_slot,priority:2,where:status = 'PENDING'"`
	Status          TaskStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_reminder_status_scheduled,priority:1"`
	ErrorMessage    string     `gorm:"type:text"`
	ProcessedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScheduledReminderTask) TableName() string { return "scheduled_reminder_tasks" }

func NewScheduledReminderTask(businessID, appointmentID uuid.UUID, scheduledAt time.Time, leadTimeMinutes int) *ScheduledReminderTask {
	return &ScheduledReminderTask{
		ID:              uuid.New(),
		BusinessID:      businessID,
		AppointmentID:   appointmentID,
		ScheduledAt:     scheduledAt.UTC(),
		LeadTimeMinutes: leadTimeMinutes,
		Status:          TaskPending,
	}
}
