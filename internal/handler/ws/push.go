// Package ws pushes session state and toast changes to the browser.
package ws

import (
	"net/http"
	"strings"
	"time"

	"SignalBoard/internal/handler/api"
	"SignalBoard/internal/services/session"
	xlogger "SignalBoard/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	bufferSize = 16
)

// PushHandler serves GET /ws. The first message is the current state and toast.
type PushHandler struct {
	logger   *xlogger.Logger
	sessions *session.Manager
	origins  []string
	upgrader websocket.Upgrader
}

// NewPushHandler accepts upgrades from the listed origins, matching the CORS
// allow list. An empty list or "*" accepts any origin.
func NewPushHandler(logger *xlogger.Logger, sessions *session.Manager, origins ...string) *PushHandler {
	h := &PushHandler{
		logger:   logger,
		sessions: sessions,
		origins:  origins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin lets requests without an Origin header through; those are not
// from a browser.
func (h *PushHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (h *PushHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

func (h *PushHandler) Serve(c echo.Context) error {
	if !h.checkOrigin(c.Request()) {
		h.logger.Warn("websocket origin rejected", xlogger.String("origin", c.Request().Header.Get("Origin")))
		return c.NoContent(http.StatusForbidden)
	}
	s, _ := h.sessions.Get(api.SessionID(c))
	events, cancel := s.Subscribe(bufferSize)
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), http.Header{api.HeaderSessionID: []string{s.ID}})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	log := h.logger.With(xlogger.String("session", s.ID))
	log.Debug("websocket connected")
	defer log.Debug("websocket disconnected")

	done := make(chan struct{})
	go h.readLoop(conn, done)

	initial := []session.Event{
		{Type: session.EventState, Data: s.Nav.State()},
		{Type: session.EventToast, Data: s.Toast.Current()},
	}
	for _, ev := range initial {
		if err := writeJSON(conn, ev); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), time.Now().Add(writeWait))
				return nil
			}
			if err := writeJSON(conn, ev); err != nil {
				log.Debug("websocket write failed", xlogger.Error(err))
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *PushHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
