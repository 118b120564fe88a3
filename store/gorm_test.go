package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"salonpro-reminders/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Business{},
		&models.Branch{},
		&models.Customer{},
		&models.ReminderConfig{},
		&models.Appointment{},
		&models.ScheduledReminderTask{},
		&models.SmsDeliveryLog{},
	))
	return db
}

func newTestStore(t *testing.T, now time.Time) (*GormStore, *gorm.DB) {
	db := newTestDB(t)
	s := NewGormStore(db)
	s.now = func() time.Time { return now }
	return s, db
}

func TestGormTransitionTaskIsConditional(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, now)
	ctx := context.Background()

	task := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now.Add(time.Hour), 60)
	require.NoError(t, s.CreateTasks(ctx, []*models.ScheduledReminderTask{task}))

	ok, err := s.TransitionTask(ctx, task.ID, models.TaskPending, models.TaskProcessing, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionTask(ctx, task.ID, models.TaskPending, models.TaskProcessing, "")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = s.TransitionTask(ctx, task.ID, models.TaskProcessing, models.TaskCompleted, "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.ProcessedAt.Equal(now))
}

func TestGormCancelLeavesInFlightTasks(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, now)
	ctx := context.Background()
	apptID := uuid.New()

	pending := models.NewScheduledReminderTask(uuid.New(), apptID, now.Add(time.Hour), 60)
	running := models.NewScheduledReminderTask(uuid.New(), apptID, now.Add(2*time.Hour), 120)
	other := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now.Add(time.Hour), 60)
	require.NoError(t, s.CreateTasks(ctx, []*models.ScheduledReminderTask{pending, running, other}))
	_, err := s.TransitionTask(ctx, running.ID, models.TaskPending, models.TaskProcessing, "")
	require.NoError(t, err)

	n, err := s.CancelAppointmentTasks(ctx, apptID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	tasks, err := s.ListTasksByAppointment(ctx, apptID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, models.TaskCancelled, tasks[0].Status)
	assert.Equal(t, models.TaskProcessing, tasks[1].Status)

	got, err := s.GetTask(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Status)
}

func TestGormListOverduePending(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, now)
	ctx := context.Background()

	old := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now.Add(-time.Hour), 60)
	older := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now.Add(-2*time.Hour), 60)
	recent := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now.Add(-time.Minute), 60)
	done := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now.Add(-3*time.Hour), 60)
	require.NoError(t, s.CreateTasks(ctx, []*models.ScheduledReminderTask{old, older, recent, done}))
	_, err := s.TransitionTask(ctx, done.ID, models.TaskPending, models.TaskSkipped, "stale")
	require.NoError(t, err)

	tasks, err := s.ListOverduePending(ctx, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, older.ID, tasks[0].ID)
	assert.Equal(t, old.ID, tasks[1].ID)

	tasks, err = s.ListOverduePending(ctx, now.Add(-2*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGormGetAppointmentFiltersDeleted(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, db := newTestStore(t, now)
	ctx := context.Background()

	bizID := uuid.New()
	cust := models.Customer{ID: uuid.New(), BusinessID: bizID, Name: "Ana", Phone: "09171234567"}
	branch := models.Branch{ID: uuid.New(), BusinessID: bizID, Name: "Makati"}
	require.NoError(t, db.Create(&cust).Error)
	require.NoError(t, db.Create(&branch).Error)

	live := models.Appointment{
		ID: uuid.New(), BusinessID: bizID, BranchID: branch.ID, CustomerID: cust.ID,
		StartDateTime: now.Add(24 * time.Hour), EndDateTime: now.Add(25 * time.Hour),
		Status: models.AppointmentScheduled, RemindersEnabled: true,
	}
	deletedAt := now
	gone := live
	gone.ID = uuid.New()
	gone.DeletedAt = &deletedAt
	require.NoError(t, db.Create(&live).Error)
	require.NoError(t, db.Create(&gone).Error)

	got, err := s.GetAppointment(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Customer.Name)
	assert.Equal(t, "Makati", got.Branch.Name)

	_, err = s.GetAppointment(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormAppointmentKeepsExplicitFalse(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, db := newTestStore(t, now)
	ctx := context.Background()

	bizID := uuid.New()
	cust := models.Customer{ID: uuid.New(), BusinessID: bizID, Name: "Bea", Phone: "09181234567"}
	branch := models.Branch{ID: uuid.New(), BusinessID: bizID, Name: "Pasig"}
	require.NoError(t, db.Create(&cust).Error)
	require.NoError(t, db.Create(&branch).Error)

	quiet := models.Appointment{
		ID: uuid.New(), BusinessID: bizID, BranchID: branch.ID, CustomerID: cust.ID,
		StartDateTime: now.Add(24 * time.Hour), EndDateTime: now.Add(25 * time.Hour),
		Status: models.AppointmentScheduled, RemindersEnabled: false,
	}
	require.NoError(t, db.Create(&quiet).Error)

	got, err := s.GetAppointment(ctx, quiet.ID)
	require.NoError(t, err)
	assert.False(t, got.RemindersEnabled)
	assert.False(t, got.IsWalkIn)

	disabled := models.ReminderConfig{ID: uuid.New(), BusinessID: quiet.BusinessID, LeadTimeMinutes: 60, MessageTemplate: "x"}
	require.NoError(t, db.Create(&disabled).Error)
	configs, err := s.ListEnabledConfigs(ctx, quiet.BusinessID)
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestGormListEnabledConfigs(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, db := newTestStore(t, now)
	ctx := context.Background()
	bizID := uuid.New()

	first := models.ReminderConfig{ID: uuid.New(), BusinessID: bizID, LeadTimeMinutes: 1440, MessageTemplate: "a", Enabled: true, CreatedAt: now.Add(-2 * time.Hour)}
	second := models.ReminderConfig{ID: uuid.New(), BusinessID: bizID, LeadTimeMinutes: 60, MessageTemplate: "b", Enabled: true, CreatedAt: now.Add(-time.Hour)}
	disabled := models.ReminderConfig{ID: uuid.New(), BusinessID: bizID, LeadTimeMinutes: 30, MessageTemplate: "c", CreatedAt: now}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)
	require.NoError(t, db.Create(&disabled).Error)

	configs, err := s.ListEnabledConfigs(ctx, bizID)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, first.ID, configs[0].ID)
	assert.Equal(t, second.ID, configs[1].ID)
}

func TestGormMutateBusinessPersistsOnError(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, db := newTestStore(t, now)
	ctx := context.Background()

	biz := models.Business{ID: uuid.New(), Name: "Glow", SubscriptionStatus: models.SubscriptionActive, FreeSmsCredits: 2, PaidSmsCredits: 1}
	require.NoError(t, db.Create(&biz).Error)

	errStop := fmt.Errorf("stop")
	err := s.MutateBusiness(ctx, biz.ID, func(b *models.Business) error {
		b.SubscriptionStatus = models.SubscriptionExpired
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	err = s.MutateBusiness(ctx, biz.ID, func(b *models.Business) error {
		b.FreeSmsCredits--
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetBusiness(ctx, biz.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, got.SubscriptionStatus)
	assert.Equal(t, 1, got.FreeSmsCredits)
	assert.Equal(t, 1, got.PaidSmsCredits)

	err = s.MutateBusiness(ctx, uuid.New(), func(*models.Business) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormResetQueries(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, db := newTestStore(t, now)
	ctx := context.Background()

	past := now.Add(-time.Hour)
	future := now.Add(72 * time.Hour)
	due := models.Business{ID: uuid.New(), Name: "due", SubscriptionStatus: models.SubscriptionActive, NextCreditResetDate: &past}
	later := models.Business{ID: uuid.New(), Name: "later", SubscriptionStatus: models.SubscriptionActive, NextCreditResetDate: &future}
	lapsed := models.Business{ID: uuid.New(), Name: "lapsed", SubscriptionStatus: models.SubscriptionExpired, NextCreditResetDate: &past}
	for _, b := range []*models.Business{&due, &later, &lapsed} {
		require.NoError(t, db.Create(b).Error)
	}

	ids, err := s.ListBusinessesDueForReset(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{due.ID}, ids)

	entries, err := s.ListResetSchedule(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGormDeliveryLogLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, now)
	ctx := context.Background()

	task := models.NewScheduledReminderTask(uuid.New(), uuid.New(), now, 60)
	l := models.NewSmsDeliveryLog(task, "09171234567", "hi")
	require.NoError(t, s.CreateLog(ctx, l))

	l.Status = models.DeliverySent
	l.Provider = "gateway"
	l.ProviderMessageID = "msg-1"
	l.SentAt = &now
	require.NoError(t, s.UpdateLog(ctx, l))

	logs, err := s.ListLogsByAppointment(ctx, task.AppointmentID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.DeliverySent, logs[0].Status)
	assert.Equal(t, "msg-1", logs[0].ProviderMessageID)
	require.NotNil(t, logs[0].TaskID)
	assert.Equal(t, task.ID, *logs[0].TaskID)
}

func TestGormOnePendingTaskPerSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, now)
	ctx := context.Background()
	apptID, bizID := uuid.New(), uuid.New()
	at := now.Add(time.Hour)

	require.NoError(t, s.CreateTasks(ctx, []*models.ScheduledReminderTask{models.NewScheduledReminderTask(bizID, apptID, at, 60)}))

	err := s.CreateTasks(ctx, []*models.ScheduledReminderTask{models.NewScheduledReminderTask(bizID, apptID, at, 60)})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Other lead times for the same appointment are separate slots.
	require.NoError(t, s.CreateTasks(ctx, []*models.ScheduledReminderTask{models.NewScheduledReminderTask(bizID, apptID, at.Add(-time.Hour), 120)}))

	// Once cancelled, the slot can be scheduled again.
	n, err := s.CancelAppointmentTasks(ctx, apptID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, s.CreateTasks(ctx, []*models.ScheduledReminderTask{models.NewScheduledReminderTask(bizID, apptID, at, 60)}))
}
