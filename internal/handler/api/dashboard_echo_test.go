package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/repository"
	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/services/session"
	"SignalBoard/internal/services/views"
	"SignalBoard/internal/usecase"
	"SignalBoard/pkg/cache"
	xhttp "SignalBoard/pkg/http"
	xlogger "SignalBoard/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, path string) ([]byte, error) {
	if b, ok := m[path]; ok {
		return []byte(b), nil
	}
	return nil, &xhttp.StatusError{Code: http.StatusNotFound}
}

type failingLoader struct{}

func (failingLoader) Load(context.Context, string) error { return context.DeadlineExceeded }

const latest = `{"date":"2025-01-02","total_stocks":3,"results":[{"code":"A","name":"a","signal":"매수","reason":""},{"code":"B","name":"b","signal":"매도","reason":""},{"code":"C","name":"c","signal":"매수","reason":""}]}`

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	f := mapFetcher{"/results/latest.json": latest}
	sources := usecase.Sources{Vision: repository.NewSnapshotRepository("vision", f, mc)}
	sessions := session.NewManager(session.Factory{
		Views:    views.DefaultConfig(),
		Loader:   failingLoader{},
		Markers:  repository.NewCacheMarkerStore(mc, time.Hour),
		ToastFor: time.Hour,
	})
	t.Cleanup(sessions.Close)

	h := NewDashboardEchoHandler(xlogger.Nop(), sessions, usecase.NewDashboard(sources, nil, nil),
		RateLimit{Limiter: limiter, Burst: 2, PerSec: 0.001})
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

// sessionID maps a readable test name to a stable session uuid.
func sessionID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func do(t *testing.T, e *echo.Echo, method, path, sid, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if sid != "" {
		req.Header.Set(HeaderSessionID, sessionID(sid))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec, env
}

func TestStateCreatesSession(t *testing.T) {
	e := newTestServer(t, nil)
	rec, env := do(t, e, http.MethodGet, "/api/state", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	sid := rec.Header().Get(HeaderSessionID)
	if sid == "" || !strings.Contains(rec.Header().Get("Set-Cookie"), CookieSession+"="+sid) {
		t.Fatalf("session id not issued: %v", rec.Header())
	}
	var st StateResponse
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.SessionID != sid || st.State.ActiveTab != models.TabVision || len(st.Views) != 3 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestInvalidSessionIDGetsFreshOne(t *testing.T) {
	e := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set(HeaderSessionID, "not-a-uuid")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	sid := rec.Header().Get(HeaderSessionID)
	if sid == "not-a-uuid" {
		t.Fatalf("client-chosen id was accepted")
	}
	if _, err := uuid.Parse(sid); err != nil {
		t.Fatalf("issued id %q is not a uuid: %v", sid, err)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), CookieSession+"="+sid) {
		t.Fatalf("fresh id not set as cookie: %v", rec.Header())
	}
}

func TestMarketChangeClearsSignalAcrossRequests(t *testing.T) {
	e := newTestServer(t, nil)
	sid := "s1"

	if rec, _ := do(t, e, http.MethodPut, "/api/state/signal", sid, `{"signal":"매수"}`); rec.Code != http.StatusOK {
		t.Fatalf("set signal: %d", rec.Code)
	}
	_, env := do(t, e, http.MethodPut, "/api/state/market", sid, `{"market":"kospi"}`)
	var st StateResponse
	_ = json.Unmarshal(env.Data, &st)
	if st.State.ActiveMarket != models.MarketKOSPI || st.State.ActiveSignal != nil {
		t.Fatalf("unexpected state %+v", st.State)
	}
}

func TestValidationErrors(t *testing.T) {
	e := newTestServer(t, nil)
	cases := []struct{ method, path, body string }{
		{http.MethodPut, "/api/state/tab", `{"tab":"chart"}`},
		{http.MethodPut, "/api/state/market", `{"market":"nyse"}`},
		{http.MethodPost, "/api/state/signal/toggle", `{"signal":"hold"}`},
		{http.MethodPut, "/api/state/history", `{"filename":"../x.json"}`},
		{http.MethodPost, "/api/toast", `{"message":""}`},
	}
	for _, tc := range cases {
		rec, _ := do(t, e, tc.method, tc.path, "v", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestDashboardReturnsFilteredView(t *testing.T) {
	e := newTestServer(t, nil)
	sid := "d1"
	do(t, e, http.MethodPost, "/api/state/signal/toggle", sid, `{"signal":"매수"}`)

	rec, env := do(t, e, http.MethodGet, "/api/dashboard", sid, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view models.DashboardView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Results) != 2 || view.Counts[models.SignalSell] != 1 || view.Status.State != models.FetchSuccess {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestDashboardAPITabWithoutSourceIs404(t *testing.T) {
	e := newTestServer(t, nil)
	do(t, e, http.MethodPut, "/api/state/tab", "a1", `{"tab":"api"}`)
	rec, _ := do(t, e, http.MethodGet, "/api/dashboard", "a1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLazyViewFailsTwiceThenInert(t *testing.T) {
	e := newTestServer(t, nil)
	sid := "lazy"
	do(t, e, http.MethodPut, "/api/state/tab", sid, `{"tab":"combined"}`)

	_, env := do(t, e, http.MethodPost, "/api/views/combined/load", sid, "")
	if !strings.Contains(string(env.Data), `"unit":"failed_once"`) || !strings.Contains(string(env.Data), `"render":"reload"`) {
		t.Fatalf("first failure: %s", env.Data)
	}
	_, env = do(t, e, http.MethodPost, "/api/views/combined/load", sid, `{"outcome":"failed","error":"chunk"}`)
	if !strings.Contains(string(env.Data), `"unit":"inert"`) {
		t.Fatalf("second failure: %s", env.Data)
	}
	_, env = do(t, e, http.MethodGet, "/api/views/combined", sid, "")
	var tv views.TabView
	_ = json.Unmarshal(env.Data, &tv)
	if tv.Render != views.RenderInert || !tv.Mounted {
		t.Fatalf("unexpected view %+v", tv)
	}
}

func TestLoadNonLazyTabIs400(t *testing.T) {
	e := newTestServer(t, nil)
	rec, _ := do(t, e, http.MethodPost, "/api/views/api/load", "n", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodGet, "/api/views/chart", "n", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown tab, got %d", rec.Code)
	}
}

func TestToastRoundTrip(t *testing.T) {
	e := newTestServer(t, nil)
	do(t, e, http.MethodPost, "/api/toast", "t", `{"message":"saved"}`)
	_, env := do(t, e, http.MethodGet, "/api/toast", "t", "")
	if !strings.Contains(string(env.Data), `"message":"saved"`) || !strings.Contains(string(env.Data), `"is_visible":true`) {
		t.Fatalf("unexpected toast %s", env.Data)
	}
}

func TestResetAndHistoryPanel(t *testing.T) {
	e := newTestServer(t, nil)
	sid := "r"
	do(t, e, http.MethodPut, "/api/state/history", sid, `{"filename":"2025-01-01.json"}`)
	_, env := do(t, e, http.MethodPost, "/api/state/history-panel/open", sid, "")
	var st StateResponse
	_ = json.Unmarshal(env.Data, &st)
	if !st.State.HistoryPanelOpen || !st.State.IsViewingHistory {
		t.Fatalf("unexpected state %+v", st.State)
	}
	_, env = do(t, e, http.MethodPost, "/api/state/reset", sid, "")
	st = StateResponse{}
	_ = json.Unmarshal(env.Data, &st)
	if st.State.HistoryPanelOpen || st.State.IsViewingHistory || st.State.ViewingHistoryFilename != nil {
		t.Fatalf("reset incomplete %+v", st.State)
	}
}

func TestInvalidateRejectsUnknownKey(t *testing.T) {
	e := newTestServer(t, nil)
	rec, _ := do(t, e, http.MethodPost, "/api/cache/invalidate", "i", `{"key":"everything"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodPost, "/api/cache/invalidate", "i", `{"key":"latest"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	e := newTestServer(t, ratelimit.New())
	codes := []int{}
	for i := 0; i < 3; i++ {
		rec, _ := do(t, e, http.MethodPost, "/api/state/reset", "rl", "")
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	if rec, _ := do(t, e, http.MethodGet, "/api/state", "rl", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rec.Code)
	}
}
