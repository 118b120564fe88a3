package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonpro-reminders/models"
)

// Memory is an in-process store. A single mutex serializes every operation,
// which also gives MutateBusiness its row-lock semantics.
type Memory struct {
	mu           sync.Mutex
	now          func() time.Time
	tasks        map[uuid.UUID]models.ScheduledReminderTask
	logs         map[uuid.UUID]models.SmsDeliveryLog
	appointments map[uuid.UUID]models.Appointment
	customers    map[uuid.UUID]models.Customer
	branches     map[uuid.UUID]models.Branch
	configs      map[uuid.UUID]models.ReminderConfig
	businesses   map[uuid.UUID]models.Business
}

func NewMemory() *Memory {
	return &Memory{
		now:          time.Now,
		tasks:        make(map[uuid.UUID]models.ScheduledReminderTask),
		logs:         make(map[uuid.UUID]models.SmsDeliveryLog),
		appointments: make(map[uuid.UUID]models.Appointment),
		customers:    make(map[uuid.UUID]models.Customer),
		branches:     make(map[uuid.UUID]models.Branch),
		configs:      make(map[uuid.UUID]models.ReminderConfig),
		businesses:   make(map[uuid.UUID]models.Business),
	}
}

// SetClock replaces the clock used for timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Ping(context.Context) error { return nil }

// Seeding, used by tests and the CRUD layer stand-in.

func (m *Memory) PutBusiness(b models.Business) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = b
}

func (m *Memory) PutCustomer(c models.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

func (m *Memory) PutBranch(b models.Branch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[b.ID] = b
}

func (m *Memory) PutAppointment(a models.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

func (m *Memory) PutReminderConfig(c models.ReminderConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.configs[c.ID] = c
}

// Tasks

func (m *Memory) CreateTasks(_ context.Context, tasks []*models.ScheduledReminderTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := make(map[slotKey]bool)
	for _, t := range m.tasks {
		if t.Status == models.TaskPending {
			taken[pendingSlot(&t)] = true
		}
	}
	for _, t := range tasks {
		if t.Status != models.TaskPending {
			continue
		}
		k := pendingSlot(t)
		if taken[k] {
			return ErrDuplicate
		}
		taken[k] = true
	}

	now := m.now().UTC()
	for _, t := range tasks {
		t.CreatedAt, t.UpdatedAt = now, now
		m.tasks[t.ID] = *t
	}
	return nil
}

func (m *Memory) GetTask(_ context.Context, id uuid.UUID) (*models.ScheduledReminderTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) TransitionTask(_ context.Context, id uuid.UUID, from, to models.TaskStatus, errMsg string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	m.tasks[id] = m.transitionLocked(t, to, errMsg)
	return true, nil
}

func (m *Memory) transitionLocked(t models.ScheduledReminderTask, to models.TaskStatus, errMsg string) models.ScheduledReminderTask {
	now := m.now().UTC()
	t.Status = to
	t.ErrorMessage = errMsg
	t.UpdatedAt = now
	if to.Terminal() {
		t.ProcessedAt = &now
	}
	return t
}

func (m *Memory) CancelAppointmentTasks(_ context.Context, appointmentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tasks {
		if t.AppointmentID == appointmentID && t.Status == models.TaskPending {
			m.tasks[id] = m.transitionLocked(t, models.TaskCancelled, "appointment cancelled or rescheduled")
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListTasksByAppointment(_ context.Context, appointmentID uuid.UUID) ([]models.ScheduledReminderTask, error) {
	return m.filterTasks(func(t models.ScheduledReminderTask) bool {
		return t.AppointmentID == appointmentID
	}, 0), nil
}

func (m *Memory) ListOverduePending(_ context.Context, before time.Time, limit int) ([]models.ScheduledReminderTask, error) {
	return m.filterTasks(func(t models.ScheduledReminderTask) bool {
		return t.Status == models.TaskPending && t.ScheduledAt.Before(before)
	}, limit), nil
}

func (m *Memory) ListPendingDueBefore(_ context.Context, before time.Time) ([]models.ScheduledReminderTask, error) {
	return m.filterTasks(func(t models.ScheduledReminderTask) bool {
		return t.Status == models.TaskPending && !t.ScheduledAt.After(before)
	}, 0), nil
}

func (m *Memory) filterTasks(keep func(models.ScheduledReminderTask) bool, limit int) []models.ScheduledReminderTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledReminderTask
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Delivery logs

func (m *Memory) CreateLog(_ context.Context, l *models.SmsDeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	m.logs[l.ID] = *l
	return nil
}

func (m *Memory) UpdateLog(_ context.Context, l *models.SmsDeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[l.ID]; !ok {
		return ErrNotFound
	}
	l.UpdatedAt = m.now().UTC()
	m.logs[l.ID] = *l
	return nil
}

func (m *Memory) ListLogsByAppointment(_ context.Context, appointmentID uuid.UUID) ([]models.SmsDeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SmsDeliveryLog
	for _, l := range m.logs {
		if l.AppointmentID != nil && *l.AppointmentID == appointmentID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Logs returns every delivery log.
func (m *Memory) Logs() []models.SmsDeliveryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SmsDeliveryLog, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l)
	}
	return out
}

// Appointments and reminder rules

func (m *Memory) GetAppointment(_ context.Context, id uuid.UUID) (*models.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.DeletedAt != nil {
		return nil, ErrNotFound
	}
	a.Customer = m.customers[a.CustomerID]
	a.Branch = m.branches[a.BranchID]
	return &a, nil
}

func (m *Memory) ListEnabledConfigs(_ context.Context, businessID uuid.UUID) ([]models.ReminderConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReminderConfig
	for _, c := range m.configs {
		if c.BusinessID == businessID && c.Enabled && c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Businesses

func (m *Memory) GetBusiness(_ context.Context, id uuid.UUID) (*models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok || b.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *Memory) MutateBusiness(_ context.Context, id uuid.UUID, fn func(b *models.Business) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok || b.DeletedAt != nil {
		return ErrNotFound
	}
	err := fn(&b)
	b.UpdatedAt = m.now().UTC()
	m.businesses[id] = b
	return err
}

func (m *Memory) ListBusinessesDueForReset(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.Business
	for _, b := range m.businesses {
		if b.DeletedAt == nil && b.SubscriptionStatus == models.SubscriptionActive &&
			b.NextCreditResetDate != nil && !b.NextCreditResetDate.After(now) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextCreditResetDate.Before(*due[j].NextCreditResetDate) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]uuid.UUID, len(due))
	for i, b := range due {
		ids[i] = b.ID
	}
	return ids, nil
}

func (m *Memory) ListResetSchedule(context.Context) ([]ResetEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ResetEntry
	for _, b := range m.businesses {
		if b.DeletedAt == nil && b.SubscriptionStatus == models.SubscriptionActive && b.NextCreditResetDate != nil {
			out = append(out, ResetEntry{BusinessID: b.ID, NextCreditResetDate: *b.NextCreditResetDate})
		}
	}
	return out, nil
}
