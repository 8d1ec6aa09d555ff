package server

import (
	"net/http"
	"time"

	"filevault/pkg/log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// requestLogger writes one zerolog line per request, tagged with the
// request id set by middleware.RequestID.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				event = log.Error().Err(v.Error)
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Str("remote_ip", v.RemoteIP).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request handled")
			return nil
		},
	})
}

// resolveOwner resolves the Authorization header into an owner identity
// and stores it on the context.
func (s *Server) resolveOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		owner, err := s.deps.Owners.ResolveOwner(ctx.Request().Context(), ctx.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			log.Warn().Err(err).Str("path", ctx.Request().URL.Path).Msg("Owner resolution failed")
			return respondError(ctx, err)
		}
		ctx.Set(ownerKey, owner)
		return next(ctx)
	}
}

func ownerFrom(ctx echo.Context) string {
	owner, _ := ctx.Get(ownerKey).(string)
	return owner
}

// limitBody caps the request body at MaxUploadBytes.
func (s *Server) limitBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		req := ctx.Request()
		if req.ContentLength > s.cfg.MaxUploadBytes {
			return ctx.JSON(http.StatusRequestEntityTooLarge, map[string]string{
				"error": "upload too large",
			})
		}
		req.Body = http.MaxBytesReader(ctx.Response(), req.Body, s.cfg.MaxUploadBytes)
		return next(ctx)
	}
}

// shareRateLimiter returns a per client IP limiter for /share, or nothing
// when limiting is disabled.
func (s *Server) shareRateLimiter() []echo.MiddlewareFunc {
	if s.cfg.ShareRateLimit <= 0 {
		return nil
	}
	burst := s.cfg.ShareRateBurst
	if burst <= 0 {
		burst = 1
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.ShareRateLimit),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return []echo.MiddlewareFunc{middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, _ error) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{"error": "unable to identify client"})
		},
		DenyHandler: func(ctx echo.Context, identifier string, _ error) error {
			log.Warn().Str("client", identifier).Msg("Share rate limit exceeded")
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		},
	})}
}
