package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"salonpro-reminders/config"
	"salonpro-reminders/controllers"
	"salonpro-reminders/queue"
	"salonpro-reminders/routes"
	"salonpro-reminders/services"
	"salonpro-reminders/sms"
	"salonpro-reminders/store"
	"salonpro-reminders/utils"
	"salonpro-reminders/worker"
)

func main() {
	tokenSubject := flag.String("token", "", "print a signed operator token for `subject` and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg)

	if *tokenSubject != "" {
		token, err := utils.GenerateToken(*tokenSubject, cfg.JWTSecret, cfg.JWTExpiry())
		if err != nil {
			log.Fatal().Err(err).Msg("sign token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("reminder engine stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := config.ConnectDB(cfg.DB, cfg.IsProduction())
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st := store.NewGormStore(db)

	checks := map[string]func(context.Context) error{"db": st.Ping}
	reminderQueue, resetQueue, closeQueues, err := openQueues(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeQueues()

	provider := newProvider(cfg, log)
	guard := services.NewCreditGuard(st, cfg.MonthlyCredits, log)
	processor := services.NewReminderProcessor(st, guard, provider, cfg.Location(), log)
	scheduler := services.NewReminderScheduler(st, reminderQueue, log)
	resetter := services.NewCreditResetter(guard, st, resetQueue, cfg.RecoveryBatchSize, log)
	recovery := services.NewRecoveryScanner(st, processor, cfg.RecoveryGrace, cfg.RecoveryBatchSize, log)

	jobs, err := services.NewReminderService(scheduler, recovery, resetter, services.JobConfig{
		RecoveryInterval: cfg.RecoveryInterval,
		CreditResetScan:  cfg.CreditResetScan,
		HydrateHorizon:   cfg.HydrateHorizon,
		Location:         cfg.Location(),
	}, log)
	if err != nil {
		return err
	}

	if _, err := scheduler.Hydrate(ctx, cfg.HydrateHorizon); err != nil {
		log.Error().Err(err).Msg("hydrate reminder queue")
	}
	if _, err := resetter.HydrateResets(ctx); err != nil {
		log.Error().Err(err).Msg("hydrate reset queue")
	}

	reminderWorkers := worker.New(reminderQueue, processor.Handle, worker.Config{
		Name:        "reminders",
		PoolSize:    cfg.PoolSize(),
		TaskTimeout: cfg.TaskTimeout,
	}, log)
	resetWorkers := worker.New(resetQueue, resetter.Handle, worker.Config{
		Name:        "credit_resets",
		PoolSize:    2,
		TaskTimeout: cfg.TaskTimeout,
	}, log)
	reminderWorkers.Start(ctx)
	resetWorkers.Start(ctx)
	jobs.StartScheduler(ctx)

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("%w: JWT_SECRET is required in production", config.ErrInvalidConfig)
		}
		secret = utils.GenerateJWTSecret()
		log.Warn().Msg("JWT_SECRET not set, using a random secret for this run")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(routes.Deps{
		Reminders: &controllers.ReminderController{Scheduler: scheduler},
		Credits:   &controllers.CreditController{Guard: guard, Provider: provider},
		Health:    &controllers.HealthController{Checks: checks},
		JWTSecret: secret,
		Log:       log,
	})
	printRoutes(router, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TaskTimeout+10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	jobs.Stop()
	if err := reminderWorkers.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stop reminder workers")
	}
	if err := resetWorkers.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("stop reset workers")
	}
	return nil
}

// openQueues returns redis-backed queues when REDIS_URL is set, otherwise
// in-memory ones that hydration refills on startup and every half horizon.
func openQueues(ctx context.Context, cfg config.Config, checks map[string]func(context.Context) error) (queue.Queue, queue.Queue, func(), error) {
	if cfg.Redis.URL == "" {
		reminders, resets := queue.NewMemory(), queue.NewMemory()
		return reminders, resets, func() {
			_ = reminders.Close()
			_ = resets.Close()
		}, nil
	}

	client, err := config.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, nil, err
	}
	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	var rc redis.UniversalClient = client
	reminders := queue.NewRedis(rc, "reminders", cfg.QueuePollInterval)
	resets := queue.NewRedis(rc, "credit_resets", cfg.QueuePollInterval)
	return reminders, resets, func() {
		_ = reminders.Close()
		_ = resets.Close()
		_ = client.Close()
	}, nil
}

func printRoutes(r *gin.Engine, log zerolog.Logger) {
	for _, route := range r.Routes() {
		log.Debug().Str("method", route.Method).Str("path", route.Path).Msg("route")
	}
}

func newProvider(cfg config.Config, log zerolog.Logger) sms.Provider {
	if cfg.SMS.Provider == "twilio" {
		return sms.NewTwilioClient(sms.TwilioConfig{
			AccountSID:  cfg.Twilio.AccountSID,
			AuthToken:   cfg.Twilio.AuthToken,
			PhoneNumber: cfg.Twilio.PhoneNumber,
			Timeout:     cfg.SMS.ConnectTimeout + cfg.SMS.ReadTimeout,
			MaxRetries:  cfg.SMS.MaxRetries,
			RetryDelay:  cfg.SMS.RetryDelay,
			RatePerSec:  cfg.SMS.RatePerSec,
		}, log)
	}
	return sms.NewClient(sms.Config{
		BaseURL:        cfg.SMS.APIURL,
		Token:          cfg.SMS.APIToken,
		SenderID:       cfg.SMS.SenderID,
		ConnectTimeout: cfg.SMS.ConnectTimeout,
		ReadTimeout:    cfg.SMS.ReadTimeout,
		MaxRetries:     cfg.SMS.MaxRetries,
		RetryDelay:     cfg.SMS.RetryDelay,
		RatePerSec:     cfg.SMS.RatePerSec,
	}, log)
}
