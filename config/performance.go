package config

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const slowRequest = 200 * time.Millisecond

func PerformanceLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("comp", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		ev := log.Info()
		if latency > slowRequest {
			ev = log.Warn().Bool("slow", true)
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("dur", latency).
			Msg("request")
	}
}
