package models

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

// Appointment is the CRUD layer's booking row, read by the reminder engine.
type Appointment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	BusinessID uuid.UUID `gorm:"type:uuid;index;not null"`
	BranchID   uuid.UUID `gorm:"type:uuid;index;not null"`
	CustomerID uuid.UUID `gorm:"type:uuid;index;not null"`

	StartDateTime time.Time         `gorm:"not null"`
	EndDateTime   time.Time         `gorm:"not null"`
	Status        AppointmentStatus `gorm:"type:varchar(20);not null;default:'SCHEDULED'"`

	// No gorm default on the bools: gorm would drop an explicit false on create.
	RemindersEnabled        bool `gorm:"not null"`
	ReminderLeadTimeMinutes *int
	IsWalkIn                bool `gorm:"not null"`

	Customer Customer `gorm:"foreignKey:CustomerID"`
	Branch   Branch   `gorm:"foreignKey:BranchID"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

// Inactive reports whether the appointment will not take place.
func (a *Appointment) Inactive() bool {
	return a.Status == AppointmentCancelled || a.Status == AppointmentNoShow
}
