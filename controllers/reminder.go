// controllers/reminder.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salonpro-reminders/models"
	"salonpro-reminders/services"
	"salonpro-reminders/store"
	"salonpro-reminders/utils"
)

// ReminderController exposes the reminder engine to the CRUD layer.
type ReminderController struct {
	Scheduler *services.ReminderScheduler
}

// TaskResponse is one scheduled reminder in API output
type TaskResponse struct {
	ID              uuid.UUID  `json:"id"`
	ScheduledAt     time.Time  `json:"scheduledAt"`
	LeadTimeMinutes int        `json:"leadTimeMinutes"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
}

// DeliveryResponse is one delivery attempt in API output
type DeliveryResponse struct {
	ID                uuid.UUID  `json:"id"`
	TaskID            *uuid.UUID `json:"taskId,omitempty"`
	Recipient         string     `json:"recipient"`
	Message           string     `json:"message"`
	Status            string     `json:"status"`
	Provider          string     `json:"provider"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type ReminderHistory struct {
	AppointmentID uuid.UUID          `json:"appointmentId"`
	Tasks         []TaskResponse     `json:"tasks"`
	Deliveries    []DeliveryResponse `json:"deliveries"`
}

func appointmentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid appointment ID")
		return uuid.Nil, false
	}
	return id, true
}

// ScheduleReminders creates reminder tasks for a newly booked appointment
func (rc *ReminderController) ScheduleReminders(c *gin.Context) {
	rc.schedule(c, http.StatusCreated, rc.Scheduler.Schedule)
}

// RescheduleReminders replaces pending reminders after a time change
func (rc *ReminderController) RescheduleReminders(c *gin.Context) {
	rc.schedule(c, http.StatusOK, rc.Scheduler.Reschedule)
}

func (rc *ReminderController) schedule(c *gin.Context, code int, fn func(context.Context, uuid.UUID) ([]*models.ScheduledReminderTask, error)) {
	id, ok := appointmentID(c)
	if !ok {
		return
	}
	tasks, err := fn(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(c, http.StatusNotFound, "Appointment not found")
		return
	}
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to schedule reminders")
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(*t))
	}
	c.JSON(code, gin.H{"appointmentId": id, "tasks": out})
}

// CancelReminders stops every pending reminder of the appointment
func (rc *ReminderController) CancelReminders(c *gin.Context) {
	id, ok := appointmentID(c)
	if !ok {
		return
	}
	n, err := rc.Scheduler.Cancel(c.Request.Context(), id)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to cancel reminders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointmentId": id, "cancelled": n})
}

// GetReminderHistory lists the appointment's reminder tasks and delivery logs
func (rc *ReminderController) GetReminderHistory(c *gin.Context) {
	id, ok := appointmentID(c)
	if !ok {
		return
	}
	tasks, logs, err := rc.Scheduler.History(c.Request.Context(), id)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve reminder history")
		return
	}

	history := ReminderHistory{
		AppointmentID: id,
		Tasks:         make([]TaskResponse, 0, len(tasks)),
		Deliveries:    make([]DeliveryResponse, 0, len(logs)),
	}
	for _, t := range tasks {
		history.Tasks = append(history.Tasks, toTaskResponse(t))
	}
	for _, l := range logs {
		history.Deliveries = append(history.Deliveries, DeliveryResponse{
			ID:                l.ID,
			TaskID:            l.TaskID,
			Recipient:         l.Recipient,
			Message:           l.Message,
			Status:            string(l.Status),
			Provider:          l.Provider,
			ProviderMessageID: l.ProviderMessageID,
			ErrorMessage:      l.ErrorMessage,
			SentAt:            l.SentAt,
			CreatedAt:         l.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, history)
}

func toTaskResponse(t models.ScheduledReminderTask) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		ScheduledAt:     t.ScheduledAt,
		LeadTimeMinutes: t.LeadTimeMinutes,
		Status:          string(t.Status),
		ErrorMessage:    t.ErrorMessage,
		ProcessedAt:     t.ProcessedAt,
	}
}
