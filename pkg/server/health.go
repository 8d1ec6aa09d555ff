package server

import (
	"net/http"
	"time"

	"filevault/pkg/log"

	"github.com/labstack/echo/v4"
)

// HealthInfo is the body of GET /healthz.
type HealthInfo struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
}

func (s *Server) health(ctx echo.Context) error {
	uptime := time.Since(s.started).Truncate(time.Second)
	info := HealthInfo{
		Status:        "ok",
		Version:       s.cfg.Version,
		Uptime:        uptime.String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Database:      "unknown",
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(ctx.Request().Context()); err != nil {
			log.Error().Err(err).Msg("Database health check failed")
			info.Status = "degraded"
			info.Database = "unreachable"
			return ctx.JSON(http.StatusServiceUnavailable, info)
		}
		info.Database = "ok"
	}

	return ctx.JSON(http.StatusOK, info)
}
