// Package session keeps one navigation store, view controller and toast slot
// per browser session and fans their changes out to subscribers.
package session

import (
	"context"
	"sync"
	"time"

	domrepo "SignalBoard/internal/domain/repository"
	"SignalBoard/internal/services/navigation"
	"SignalBoard/internal/services/notify"
	"SignalBoard/internal/services/views"
	applogger "SignalBoard/pkg/logger"

	"github.com/google/uuid"
)

// Event types pushed to subscribers.
const (
	EventState = "state"
	EventToast = "toast"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Session is the per-browser bundle of dashboard state.
type Session struct {
	ID    string
	Nav   *navigation.Store
	Views *views.Controller
	Toast *notify.Queue

	mu       sync.Mutex
	lastSeen time.Time
	subs     map[chan Event]struct{}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Subscribe returns a channel of this session's events and a cancel func.
// Slow subscribers drop events rather than block mutations.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Session) publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) close() {
	s.Toast.Close()
	s.mu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan Event]struct{})
	s.mu.Unlock()
}

// Factory builds the per-session components.
type Factory struct {
	Views       views.Config
	Loader      domrepo.UnitLoader
	Markers     domrepo.MarkerStore
	ViewOptions []views.Option
	ToastFor    time.Duration
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMaxIdle(d time.Duration) Option {
	return func(m *Manager) { m.maxIdle = d }
}

func WithLogger(l *applogger.Logger) Option {
	return func(m *Manager) { m.l = l }
}

// Manager owns all live sessions.
type Manager struct {
	factory Factory
	maxIdle time.Duration
	now     func() time.Time
	l       *applogger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		maxIdle:  30 * time.Minute,
		now:      time.Now,
		l:        applogger.Nop(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// CanonicalID returns id in canonical UUID form, or false when id is not a UUID.
func CanonicalID(id string) (string, bool) {
	if id == "" || len(id) > 45 {
		return "", false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// Get returns the session for id, creating it when unknown. Ids that are not
// UUIDs, including the empty id, are replaced by a generated one. created
// reports whether a new session was made.
func (m *Manager) Get(id string) (s *Session, created bool) {
	id, ok := CanonicalID(id)
	if !ok {
		id = NewID()
	}
	now := m.now()

	m.mu.Lock()
	s, ok = m.sessions[id]
	if !ok {
		s = m.build(id)
		m.sessions[id] = s
	}
	m.mu.Unlock()

	s.touch(now)
	if !ok {
		m.l.Debug("session created", applogger.String("session", id))
	}
	return s, !ok
}

// Lookup returns an existing session without creating one.
func (m *Manager) Lookup(id string) (*Session, bool) {
	id, ok := CanonicalID(id)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the max idle time and returns how
// many were removed. Sessions with live subscribers are kept.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.maxIdle)
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().After(cutoff) || s.subscribers() > 0 {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		m.l.Debug("sessions swept", applogger.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close drops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}

func (s *Session) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (m *Manager) build(id string) *Session {
	ctrl := views.NewController(id, m.factory.Views, m.factory.Loader, m.factory.Markers, m.factory.ViewOptions...)
	s := &Session{
		ID:    id,
		Nav:   navigation.NewStore(ctrl),
		Views: ctrl,
		Toast: notify.NewQueue(notify.WithDuration(m.factory.ToastFor)),
		subs:  make(map[chan Event]struct{}),
	}
	s.Nav.OnChange(func(st navigation.State) { s.publish(Event{Type: EventState, Data: st}) })
	s.Toast.OnChange(func(t notify.Toast) { s.publish(Event{Type: EventToast, Data: t}) })
	return s
}
