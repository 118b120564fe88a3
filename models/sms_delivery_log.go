// models/sms_delivery_log.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

// SmsDeliveryLog records one actual send attempt.
type SmsDeliveryLog struct {
	ID                uuid.UUID      `gorm:"type:uuid;primary_key"`
	BusinessID        uuid.UUID      `gorm:"type:uuid;index;not null"`
	AppointmentID     *uuid.UUID     `gorm:"type:uuid;index"`
	TaskID            *uuid.UUID     `gorm:"type:uuid;index"`
	Recipient         string         `gorm:"type:varchar(20);not null"`
	Message           string         `gorm:"type:text"`
	Status            DeliveryStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	Provider          string         `gorm:"type:varchar(20)"` // gateway, twilio
	ProviderMessageID string         `gorm:"type:varchar(64)"`
	ErrorMessage      string         `gorm:"type:text"`
	RawResponse       string         `gorm:"type:text"`
	SentAt            *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SmsDeliveryLog) TableName() string { return "sms_delivery_logs" }

func NewSmsDeliveryLog(task *ScheduledReminderTask, recipient, message string) *SmsDeliveryLog {
	appointmentID := task.AppointmentID
	taskID := task.ID
	return &SmsDeliveryLog{
		ID:            uuid.New(),
		BusinessID:    task.BusinessID,
		AppointmentID: &appointmentID,
		TaskID:        &taskID,
		Recipient:     recipient,
		Message:       message,
		Status:        DeliveryPending,
	}
}
