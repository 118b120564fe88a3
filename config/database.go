package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"salonpro-reminders/models"
)

// ConnectDB opens the postgres pool with the configured limits.
func ConnectDB(cfg DBConfig, production bool) (*gorm.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: DB_URL is empty", ErrInvalidConfig)
	}
	level := logger.Warn
	if production {
		level = logger.Error
	}
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Migrate creates the reminder engine tables. The booking tables belong to
// the CRUD layer but are migrated too so a fresh database is usable.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Business{},
		&models.Branch{},
		&models.Customer{},
		&models.ReminderConfig{},
		&models.Appointment{},
		&models.ScheduledReminderTask{},
		&models.SmsDeliveryLog{},
	)
}
