package api

import (
	"net/http"
	"time"

	"SignalBoard/internal/services/session"
	xhttp "SignalBoard/pkg/http"

	"github.com/labstack/echo/v4"
)

const (
	HeaderSessionID = xhttp.HeaderSessionID
	CookieSession   = "sid"

	ctxSession = "session"
)

// SessionID reads the session id from the header, then the cookie, then the
// sid query parameter used by websocket clients.
func SessionID(c echo.Context) string {
	if v := c.Request().Header.Get(HeaderSessionID); v != "" {
		return v
	}
	if ck, err := c.Cookie(CookieSession); err == nil && ck.Value != "" {
		return ck.Value
	}
	return c.QueryParam(CookieSession)
}

// WithSession resolves or creates the caller's session and stores it on the
// context. New ids are echoed back in the header and a cookie.
func WithSession(m *session.Manager, maxAge time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, created := m.Get(SessionID(c))
			if created {
				c.SetCookie(&http.Cookie{
					Name:     CookieSession,
					Value:    s.ID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(maxAge.Seconds()),
				})
			}
			c.Response().Header().Set(HeaderSessionID, s.ID)
			c.Set(ctxSession, s)
			return next(c)
		}
	}
}

func sessionFrom(c echo.Context) *session.Session {
	s, _ := c.Get(ctxSession).(*session.Session)
	return s
}
