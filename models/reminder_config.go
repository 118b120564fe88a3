package models

import (
	"time"

	"github.com/google/uuid"
)

// ReminderConfig is a per-business reminder rule. Each enabled rule produces
// its own scheduled task for every appointment.
type ReminderConfig struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	BusinessID      uuid.UUID `gorm:"type:uuid;index;not null"`
	LeadTimeMinutes int       `gorm:"not null"`
	MessageTemplate string    `gorm:"type:text;not null"`
	Enabled         bool      `gorm:"not null"`

	CreatedAt time.Time
	DeletedAt *time.Time
}
