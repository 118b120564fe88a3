//go:build postgres

package services

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpro-reminders/config"
	"salonpro-reminders/models"
	"salonpro-reminders/store"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags postgres ./services/
func TestConsumeCreditRowLockOnPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := config.ConnectDB(config.DBConfig{URL: dsn, MaxOpenConns: 20, MaxIdleConns: 5, ConnMaxLifetime: time.Minute}, false)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	next := time.Now().Add(30 * 24 * time.Hour)
	biz := models.Business{
		ID:                  uuid.New(),
		Name:                "row lock check",
		SubscriptionStatus:  models.SubscriptionActive,
		FreeSmsCredits:      3,
		PaidSmsCredits:      2,
		NextCreditResetDate: &next,
	}
	require.NoError(t, db.Create(&biz).Error)
	t.Cleanup(func() { db.Delete(&models.Business{}, "id = ?", biz.ID) })

	guard := NewCreditGuard(store.NewGormStore(db), 100, zerolog.Nop())
	ctx := context.Background()

	var ok atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.ConsumeCredit(ctx, biz.ID) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	var got models.Business
	require.NoError(t, db.First(&got, "id = ?", biz.ID).Error)
	assert.Zero(t, got.FreeSmsCredits)
	assert.Zero(t, got.PaidSmsCredits)
}
