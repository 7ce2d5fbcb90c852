package api

import (
	"errors"
	"fmt"
	"net/http"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/repository"
	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/services/navigation"
	"SignalBoard/internal/services/session"
	"SignalBoard/internal/services/views"
	"SignalBoard/internal/usecase"
	xhttp "SignalBoard/pkg/http"
	xlogger "SignalBoard/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StateResponse is returned by every navigation endpoint.
type StateResponse struct {
	SessionID string           `json:"session_id"`
	State     navigation.State `json:"state"`
	Views     []views.TabView  `json:"views"`
}

// RateLimit configures the per-address limit on mutating routes.
type RateLimit struct {
	Limiter *ratelimit.Limiter
	Burst   float64
	PerSec  float64
}

// DashboardEchoHandler exposes session state, dashboard views and toasts.
type DashboardEchoHandler struct {
	logger    *xlogger.Logger
	sessions  *session.Manager
	dashboard *usecase.Dashboard
	limit     RateLimit
}

func NewDashboardEchoHandler(logger *xlogger.Logger, sessions *session.Manager, dashboard *usecase.Dashboard, limit RateLimit) *DashboardEchoHandler {
	return &DashboardEchoHandler{logger: logger, sessions: sessions, dashboard: dashboard, limit: limit}
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", WithSession(h.sessions, 0))

	var rl []echo.MiddlewareFunc
	if h.limit.Limiter != nil {
		rl = append(rl, ratelimit.Middleware(h.limit.Limiter, h.limit.Burst, h.limit.PerSec))
	}

	g.GET("/state", h.State)
	g.PUT("/state/tab", h.SetTab, rl...)
	g.PUT("/state/market", h.SetMarket, rl...)
	g.PUT("/state/signal", h.SetSignal, rl...)
	g.PUT("/state/history", h.SetHistory, rl...)
	g.POST("/state/signal/toggle", h.ToggleSignal, rl...)
	g.POST("/state/signal/clear", h.ClearSignal, rl...)
	g.POST("/state/reset", h.Reset, rl...)
	g.POST("/state/history-panel/toggle", h.HistoryPanel((*navigation.Store).ToggleHistoryPanel), rl...)
	g.POST("/state/history-panel/open", h.HistoryPanel((*navigation.Store).OpenHistoryPanel), rl...)
	g.POST("/state/history-panel/close", h.HistoryPanel((*navigation.Store).CloseHistoryPanel), rl...)

	g.GET("/dashboard", h.Dashboard)
	g.GET("/history", h.History)
	g.GET("/views/:tab", h.View)
	g.POST("/views/:tab/load", h.LoadView, rl...)

	g.GET("/toast", h.CurrentToast)
	g.POST("/toast", h.ShowToast, rl...)
	g.POST("/cache/invalidate", h.Invalidate, rl...)
}

func (h *DashboardEchoHandler) State(c echo.Context) error {
	s := sessionFrom(c)
	return xhttp.SuccessResponse(c, h.stateResponse(s, s.Nav.State()))
}

func (h *DashboardEchoHandler) SetTab(c echo.Context) error {
	req := &models.TabRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s := sessionFrom(c)
	st, err := s.Nav.SetActiveTab(models.Tab(req.Tab))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.stateResponse(s, st))
}

func (h *DashboardEchoHandler) SetMarket(c echo.Context) error {
	req := &models.MarketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s := sessionFrom(c)
	st, err := s.Nav.SetMarketFilter(models.Market(req.Market))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.stateResponse(s, st))
}

func (h *DashboardEchoHandler) SetSignal(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var sig *models.Signal
	if req.Signal != "" {
		v := models.Signal(req.Signal)
		sig = &v
	}
	s := sessionFrom(c)
	st, err := s.Nav.SetSignalFilter(sig)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.stateResponse(s, st))
}

func (h *DashboardEchoHandler) ToggleSignal(c echo.Context) error {
	req := &models.ToggleSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s := sessionFrom(c)
	st, err := s.Nav.ToggleSignalFilter(models.Signal(req.Signal))
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.stateResponse(s, st))
}

func (h *DashboardEchoHandler) ClearSignal(c echo.Context) error {
	s := sessionFrom(c)
	return xhttp.SuccessResponse(c, h.stateResponse(s, s.Nav.ClearSignalFilter()))
}

func (h *DashboardEchoHandler) SetHistory(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var name *string
	if req.Filename != "" {
		name = &req.Filename
	}
	s := sessionFrom(c)
	return xhttp.SuccessResponse(c, h.stateResponse(s, s.Nav.SetViewingHistory(name)))
}

func (h *DashboardEchoHandler) Reset(c echo.Context) error {
	s := sessionFrom(c)
	return xhttp.SuccessResponse(c, h.stateResponse(s, s.Nav.ResetToLatest()))
}

// HistoryPanel adapts one of the panel mutators to a handler.
func (h *DashboardEchoHandler) HistoryPanel(fn func(*navigation.Store) navigation.State) echo.HandlerFunc {
	return func(c echo.Context) error {
		s := sessionFrom(c)
		return xhttp.SuccessResponse(c, h.stateResponse(s, fn(s.Nav)))
	}
}

func (h *DashboardEchoHandler) Dashboard(c echo.Context) error {
	s := sessionFrom(c)
	view, err := h.dashboard.View(c.Request().Context(), s.Nav.State())
	if err != nil {
		return h.fail(c, err)
	}
	if view.Status.State == models.FetchSuccess {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *DashboardEchoHandler) History(c echo.Context) error {
	req := &models.HistoryListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	view, err := h.dashboard.HistoryList(c.Request().Context(), req.Source, req.Limit)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *DashboardEchoHandler) View(c echo.Context) error {
	tab, err := tabParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	s := sessionFrom(c)
	active := s.Nav.State().ActiveTab
	return xhttp.SuccessResponse(c, views.TabView{
		Tab:     tab,
		Policy:  s.Views.Policy(tab),
		Mounted: containsTab(s.Views.Mounted(), tab),
		Unit:    s.Views.Unit(tab),
		Render:  s.Views.Render(tab, tab == active),
	})
}

// LoadView loads a lazy unit server side, or records the outcome the browser saw.
func (h *DashboardEchoHandler) LoadView(c echo.Context) error {
	tab, err := tabParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	req := &models.ViewLoadRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s := sessionFrom(c)
	ctx := c.Request().Context()

	var st views.UnitState
	switch req.Outcome {
	case "loaded":
		st, err = s.Views.Report(ctx, tab, nil)
	case "failed":
		msg := req.Error
		if msg == "" {
			msg = "unit failed to load"
		}
		st, err = s.Views.Report(ctx, tab, errors.New(msg))
	default:
		st, err = s.Views.Load(ctx, tab)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"tab":    tab,
		"unit":   st,
		"render": s.Views.Render(tab, tab == s.Nav.State().ActiveTab),
	})
}

func (h *DashboardEchoHandler) CurrentToast(c echo.Context) error {
	return xhttp.SuccessResponse(c, sessionFrom(c).Toast.Current())
}

func (h *DashboardEchoHandler) ShowToast(c echo.Context) error {
	req := &models.ToastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, sessionFrom(c).Toast.Show(req.Message))
}

func (h *DashboardEchoHandler) Invalidate(c echo.Context) error {
	req := &models.InvalidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.dashboard.Invalidate(c.Request().Context(), req.Source, req.Key); err != nil {
		return h.fail(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"source": req.Source, "key": req.Key})
}

func (h *DashboardEchoHandler) stateResponse(s *session.Session, st navigation.State) StateResponse {
	return StateResponse{SessionID: s.ID, State: st, Views: s.Views.Views(st.ActiveTab)}
}

// fail maps domain errors to HTTP errors.
func (h *DashboardEchoHandler) fail(c echo.Context, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, navigation.ErrUnknownTab):
		appErr = xhttp.BadRequestError("tab", err.Error())
	case errors.Is(err, navigation.ErrUnknownMarket):
		appErr = xhttp.BadRequestError("market", err.Error())
	case errors.Is(err, navigation.ErrUnknownSignal):
		appErr = xhttp.BadRequestError("signal", err.Error())
	case errors.Is(err, repository.ErrInvalidKey):
		appErr = xhttp.BadRequestError("key", err.Error())
	case errors.Is(err, views.ErrNotLazy):
		appErr = xhttp.BadRequestError("tab", err.Error())
	case errors.Is(err, usecase.ErrSourceDisabled):
		appErr = xhttp.NotFoundErrorf("%v", err)
	default:
		h.logger.Error("dashboard request failed", xlogger.String("path", c.Path()), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

func tabParam(c echo.Context) (models.Tab, error) {
	tab := models.Tab(c.Param("tab"))
	if !tab.Valid() {
		return "", fmt.Errorf("%w: %q", navigation.ErrUnknownTab, c.Param("tab"))
	}
	return tab, nil
}

func containsTab(tabs []models.Tab, t models.Tab) bool {
	for _, x := range tabs {
		if x == t {
			return true
		}
	}
	return false
}
