package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"salonpro-reminders/models"
	"salonpro-reminders/queue"
	"salonpro-reminders/sms"
	"salonpro-reminders/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type sent struct {
	Phone   string
	Message string
}

type fakeProvider struct {
	mu     sync.Mutex
	sends  []sent
	result sms.Result
	delay  time.Duration
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(_ context.Context, phone, message string) sms.Result {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, sent{Phone: phone, Message: message})
	return p.result
}

func (p *fakeProvider) Balance(context.Context) (int, error) { return 500, nil }

func (p *fakeProvider) Sent() []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sent(nil), p.sends...)
}

type failingQueue struct{ queue.Queue }

func (failingQueue) Push(context.Context, queue.Item) error { return errors.New("queue down") }

// baseTime is two days before the test appointment day D, 2026-05-04.
var baseTime = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clk       *testClock
	store     *store.Memory
	queue     *queue.Memory
	provider  *fakeProvider
	guard     *CreditGuard
	processor *ReminderProcessor
	scheduler *ReminderScheduler
	recovery  *RecoveryScanner

	business models.Business
	customer models.Customer
	branch   models.Branch
	rules    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &testClock{now: baseTime}
	st := store.NewMemory()
	st.SetClock(clk.Now)
	q := queue.NewMemory()
	t.Cleanup(func() { _ = q.Close() })

	f := &fixture{
		clk:      clk,
		store:    st,
		queue:    q,
		provider: &fakeProvider{result: sms.Result{Success: true, ProviderID: "msg-1", Raw: `{"status":"success"}`}},
	}
	log := zerolog.Nop()
	f.guard = NewCreditGuard(st, 100, log)
	f.guard.now = clk.Now
	f.processor = NewReminderProcessor(st, f.guard, f.provider, time.UTC, log)
	f.processor.now = clk.Now
	f.scheduler = NewReminderScheduler(st, q, log)
	f.scheduler.now = clk.Now
	f.recovery = NewRecoveryScanner(st, f.processor, 2*time.Minute, 50, log)
	f.recovery.now = clk.Now

	f.business = models.Business{
		ID:                 uuid.New(),
		Name:               "Glow Studio",
		SubscriptionStatus: models.SubscriptionActive,
		FreeSmsCredits:     5,
	}
	st.PutBusiness(f.business)
	f.customer = models.Customer{ID: uuid.New(), BusinessID: f.business.ID, Name: "Ana", Phone: "09171234567"}
	st.PutCustomer(f.customer)
	f.branch = models.Branch{ID: uuid.New(), BusinessID: f.business.ID, Name: "Makati"}
	st.PutBranch(f.branch)
	return f
}

func (f *fixture) addConfig(lead int, tmpl string) models.ReminderConfig {
	f.rules++
	c := models.ReminderConfig{
		ID:              uuid.New(),
		BusinessID:      f.business.ID,
		LeadTimeMinutes: lead,
		MessageTemplate: tmpl,
		Enabled:         true,
		CreatedAt:       f.clk.Now().Add(time.Duration(f.rules) * time.Second),
	}
	f.store.PutReminderConfig(c)
	return c
}

func (f *fixture) addAppointment(start time.Time, mutate ...func(*models.Appointment)) models.Appointment {
	a := models.Appointment{
		ID:               uuid.New(),
		BusinessID:       f.business.ID,
		BranchID:         f.branch.ID,
		CustomerID:       f.customer.ID,
		StartDateTime:    start,
		EndDateTime:      start.Add(time.Hour),
		Status:           models.AppointmentScheduled,
		RemindersEnabled: true,
	}
	for _, m := range mutate {
		m(&a)
	}
	f.store.PutAppointment(a)
	return a
}

func (f *fixture) updateAppointment(a models.Appointment, mutate func(*models.Appointment)) models.Appointment {
	mutate(&a)
	f.store.PutAppointment(a)
	return a
}

func (f *fixture) updateBusiness(mutate func(*models.Business)) {
	b, err := f.store.GetBusiness(context.Background(), f.business.ID)
	if err != nil {
		panic(err)
	}
	mutate(b)
	f.store.PutBusiness(*b)
}

func (f *fixture) task(t *testing.T, id uuid.UUID) *models.ScheduledReminderTask {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (f *fixture) businessNow(t *testing.T) *models.Business {
	t.Helper()
	b, err := f.store.GetBusiness(context.Background(), f.business.ID)
	require.NoError(t, err)
	return b
}

// seedTask stores a PENDING task without queueing it.
func (f *fixture) seedTask(t *testing.T, a models.Appointment, lead int) *models.ScheduledReminderTask {
	t.Helper()
	task := models.NewScheduledReminderTask(a.BusinessID, a.ID, a.StartDateTime.Add(-time.Duration(lead)*time.Minute), lead)
	require.NoError(t, f.store.CreateTasks(context.Background(), []*models.ScheduledReminderTask{task}))
	return task
}

func dayD(hour int) time.Time {
	return time.Date(2026, 5, 4, hour, 0, 0, 0, time.UTC)
}
