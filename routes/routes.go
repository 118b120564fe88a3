package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"salonpro-reminders/config"
	"salonpro-reminders/controllers"
	"salonpro-reminders/utils"
)

type Deps struct {
	Reminders *controllers.ReminderController
	Credits   *controllers.CreditController
	Health    *controllers.HealthController
	JWTSecret string
	Log       zerolog.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(config.PerformanceLogger(d.Log))

	r.GET("/healthz", d.Health.Health)

	api := r.Group("/api")
	api.Use(utils.AuthMiddleware(d.JWTSecret))
	{
		// Reminder lifecycle hooks called by the CRUD layer
		reminders := api.Group("/appointments/:id/reminders")
		{
			reminders.POST("", d.Reminders.ScheduleReminders)
			reminders.PUT("", d.Reminders.RescheduleReminders)
			reminders.DELETE("", d.Reminders.CancelReminders)
			reminders.GET("", d.Reminders.GetReminderHistory)
		}

		api.GET("/businesses/:id/credits", d.Credits.GetCredits)
		api.GET("/sms/balance", d.Credits.GetSmsBalance)
	}

	return r
}
