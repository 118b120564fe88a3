package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is read from the environment, after an optional .env file.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DB    DBConfig
	Redis RedisConfig

	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	WorkerPoolSize    int           `env:"WORKER_POOL_SIZE" envDefault:"0"` // 0 uses DB_MAX_OPEN_CONNS
	TaskTimeout       time.Duration `env:"TASK_TIMEOUT" envDefault:"60s"`

	RecoveryInterval  time.Duration `env:"RECOVERY_INTERVAL" envDefault:"5m"`
	RecoveryGrace     time.Duration `env:"RECOVERY_GRACE" envDefault:"2m"`
	RecoveryBatchSize int           `env:"RECOVERY_BATCH_SIZE" envDefault:"200"`
	CreditResetScan   time.Duration `env:"CREDIT_RESET_SCAN" envDefault:"1h"`
	MonthlyCredits    int           `env:"FREE_SMS_CREDITS_PER_MONTH" envDefault:"100"`
	HydrateHorizon    time.Duration `env:"HYDRATE_HORIZON" envDefault:"24h"`

	SMS    SMSConfig
	Twilio TwilioConfig

	JWTSecret       string `env:"JWT_SECRET"`
	JWTExpiryHours  int    `env:"JWT_EXPIRY_HOURS" envDefault:"24"`
	DefaultTimezone string `env:"DEFAULT_TIMEZONE" envDefault:"Asia/Manila"`
}

type DBConfig struct {
	URL             string        `env:"DB_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

type RedisConfig struct {
	URL            string        `env:"REDIS_URL"` // empty selects the in-memory queue
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

type SMSConfig struct {
	Provider       string        `env:"SMS_PROVIDER" envDefault:"gateway"` // gateway or twilio
	APIURL         string        `env:"SMS_API_URL"`
	APIToken       string        `env:"SMS_API_TOKEN"`
	SenderID       string        `env:"SMS_SENDER_ID" envDefault:"SALONPRO"`
	ConnectTimeout time.Duration `env:"SMS_CONNECT_TIMEOUT" envDefault:"5s"`
	ReadTimeout    time.Duration `env:"SMS_READ_TIMEOUT" envDefault:"15s"`
	MaxRetries     int           `env:"SMS_MAX_RETRIES" envDefault:"3"`
	RetryDelay     time.Duration `env:"SMS_RETRY_DELAY" envDefault:"2s"`
	RatePerSec     float64       `env:"SMS_RATE_PER_SEC" envDefault:"0"`
}

type TwilioConfig struct {
	AccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	PhoneNumber string `env:"TWILIO_PHONE_NUMBER"`
}

// Load reads .env when present and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.SMS.Provider {
	case "gateway", "twilio":
	default:
		errs = append(errs, fmt.Errorf("SMS_PROVIDER %q: want gateway or twilio", c.SMS.Provider))
	}
	if c.DB.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS must be positive"))
	}
	if c.RecoveryInterval <= 0 {
		errs = append(errs, errors.New("RECOVERY_INTERVAL must be positive"))
	}
	if c.RecoveryGrace < 0 {
		errs = append(errs, errors.New("RECOVERY_GRACE must not be negative"))
	}
	if c.HydrateHorizon < 2*time.Minute {
		errs = append(errs, errors.New("HYDRATE_HORIZON must be at least 2m"))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

func (c Config) IsProduction() bool { return c.AppEnv == "production" }

// PoolSize is the worker pool size, defaulting to the DB connection limit.
func (c Config) PoolSize() int {
	if c.WorkerPoolSize > 0 {
		return c.WorkerPoolSize
	}
	return c.DB.MaxOpenConns
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryHours) * time.Hour
}
