package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/services/navigation"
	"SignalBoard/internal/services/views"
)

type nopLoader struct{}

func (nopLoader) Load(context.Context, string) error { return nil }

type onceMarkers struct {
	mu  sync.Mutex
	set map[string]bool
}

func (m *onceMarkers) MarkOnce(_ context.Context, session, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set == nil {
		m.set = make(map[string]bool)
	}
	k := session + ":" + name
	if m.set[k] {
		return false, nil
	}
	m.set[k] = true
	return true, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(c *clock) *Manager {
	return NewManager(Factory{
		Views:    views.DefaultConfig(),
		Loader:   nopLoader{},
		Markers:  &onceMarkers{},
		ToastFor: time.Hour,
	}, WithClock(c.Now), WithMaxIdle(time.Minute))
}

func TestGetCreatesOncePerID(t *testing.T) {
	m := newManager(&clock{now: time.Now()})
	defer m.Close()

	id := NewID()
	a, created := m.Get(id)
	if !created || a.ID != id {
		t.Fatalf("expected new session %s, got %s created=%v", id, a.ID, created)
	}
	b, created := m.Get(strings.ToUpper(id))
	if created || a != b {
		t.Fatalf("expected the same session for the same uuid")
	}
	gen, created := m.Get("")
	if !created || gen.ID == "" {
		t.Fatalf("expected generated id")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Len())
	}
}

func TestGetReplacesNonUUIDIDs(t *testing.T) {
	m := newManager(&clock{now: time.Now()})
	defer m.Close()

	for _, id := range []string{"abc", strings.Repeat("x", 4096), "../../etc"} {
		s, created := m.Get(id)
		if !created || s.ID == id {
			t.Fatalf("%q: expected a generated id, got %q created=%v", id, s.ID, created)
		}
		if _, ok := CanonicalID(s.ID); !ok {
			t.Fatalf("generated id %q is not a uuid", s.ID)
		}
	}
	if _, ok := m.Lookup("abc"); ok {
		t.Fatalf("non-uuid id must never resolve")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m := newManager(&clock{now: time.Now()})
	defer m.Close()

	a, _ := m.Get(NewID())
	b, _ := m.Get(NewID())
	if _, err := a.Nav.SetActiveTab(models.TabCombined); err != nil {
		t.Fatalf("set tab: %v", err)
	}
	if b.Nav.State().ActiveTab != models.TabVision {
		t.Fatalf("state leaked between sessions")
	}
	if len(a.Views.Mounted()) != 2 || len(b.Views.Mounted()) != 1 {
		t.Fatalf("mounted tabs leaked between sessions")
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	c := &clock{now: time.Now()}
	m := newManager(c)
	defer m.Close()

	old, fresh := NewID(), NewID()
	m.Get(old)
	c.Advance(2 * time.Minute)
	m.Get(fresh)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, ok := m.Lookup(old); ok {
		t.Fatalf("old session should be gone")
	}
	if _, ok := m.Lookup(fresh); !ok {
		t.Fatalf("fresh session should remain")
	}
}

func TestSweepKeepsSubscribedSessions(t *testing.T) {
	c := &clock{now: time.Now()}
	m := newManager(c)
	defer m.Close()

	s, _ := m.Get(NewID())
	_, cancel := s.Subscribe(1)
	defer cancel()
	c.Advance(time.Hour)
	if n := m.Sweep(); n != 0 {
		t.Fatalf("subscribed session swept")
	}
}

func TestSubscribeReceivesStateAndToast(t *testing.T) {
	m := newManager(&clock{now: time.Now()})
	defer m.Close()

	s, _ := m.Get(NewID())
	events, cancel := s.Subscribe(4)
	defer cancel()

	_, _ = s.Nav.SetMarketFilter(models.MarketKOSDAQ)
	s.Toast.Show("hi")

	ev := <-events
	st, ok := ev.Data.(navigation.State)
	if ev.Type != EventState || !ok || st.ActiveMarket != models.MarketKOSDAQ {
		t.Fatalf("unexpected first event %+v", ev)
	}
	if ev = <-events; ev.Type != EventToast {
		t.Fatalf("unexpected second event %+v", ev)
	}
}

func TestCancelClosesChannelOnce(t *testing.T) {
	m := newManager(&clock{now: time.Now()})
	s, _ := m.Get(NewID())
	events, cancel := s.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed")
	}
	m.Close()
}
