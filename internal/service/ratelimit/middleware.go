package ratelimit

import (
	xhttp "SignalBoard/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests from a remote address once its bucket is empty.
func Middleware(l *Limiter, burst, perSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP(), burst, perSec) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError())
			}
			return next(c)
		}
	}
}
