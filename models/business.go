package models

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Business is owned by the CRUD layer. The reminder engine reads it and
// writes only the subscription and credit columns.
type Business struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key"`
	Name     string    `gorm:"not null"`
	Timezone string    `gorm:"type:varchar(64)"`

	SubscriptionStatus    SubscriptionStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	SubscriptionStartDate *time.Time
	SubscriptionEndDate   *time.Time
	FreeSmsCredits        int `gorm:"not null;default:0;check:free_sms_credits >= 0"`
	PaidSmsCredits        int `gorm:"not null;default:0;check:paid_sms_credits >= 0"`
	NextCreditResetDate   *time.Time `gorm:"index"`

	Branches        []Branch         `gorm:"foreignKey:BusinessID"`
	ReminderConfigs []ReminderConfig `gorm:"foreignKey:BusinessID"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

// Location returns the business timezone, falling back to def when unset or invalid.
func (b *Business) Location(def *time.Location) *time.Location {
	if b == nil || b.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return def
	}
	return loc
}

// TotalCredits is free plus paid credits.
func (b *Business) TotalCredits() int {
	return b.FreeSmsCredits + b.PaidSmsCredits
}

type Branch struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	BusinessID uuid.UUID `gorm:"type:uuid;index;not null"`
	Name       string    `gorm:"not null"`
	Address    string

	DeletedAt *time.Time
}
