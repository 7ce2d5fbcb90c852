// Package views decides when each dashboard tab is mounted and drives the
// lazy-load state machine for code-split tabs.
package views

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	applogger "SignalBoard/pkg/logger"
)

// ErrNotLazy is returned by Load and Report for tabs without a lazy policy.
var ErrNotLazy = errors.New("views: tab is not lazily loaded")

type Policy string

const (
	PolicyAlways  Policy = "always"
	PolicyOnVisit Policy = "on_visit"
	PolicyLazy    Policy = "lazy"
)

// UnitState is the lazy-load state of a code unit.
type UnitState string

const (
	UnitIdle       UnitState = "idle"
	UnitLoading    UnitState = "loading"
	UnitLoaded     UnitState = "loaded"
	UnitFailedOnce UnitState = "failed_once"
	UnitInert      UnitState = "inert"
)

// Render is what the renderer should show for a tab.
type Render string

const (
	RenderUnmounted Render = "unmounted"
	RenderHidden    Render = "hidden"
	RenderLoading   Render = "loading"
	RenderContent   Render = "content"
	RenderReload    Render = "reload"
	RenderInert     Render = "inert"
)

// Config assigns a policy to every tab and a code unit to every lazy tab.
type Config struct {
	Policies map[models.Tab]Policy
	Units    map[models.Tab]string
}

// DefaultConfig keeps vision warm, mounts api on first visit and code-splits combined.
func DefaultConfig() Config {
	return Config{
		Policies: map[models.Tab]Policy{
			models.TabVision:   PolicyAlways,
			models.TabAPI:      PolicyOnVisit,
			models.TabCombined: PolicyLazy,
		},
		Units: map[models.Tab]string{
			models.TabCombined: "/assets/CombinedAnalysis.js",
		},
	}
}

// TabView is the per-tab materialization summary.
type TabView struct {
	Tab     models.Tab `json:"tab"`
	Policy  Policy     `json:"policy"`
	Mounted bool       `json:"mounted"`
	Unit    UnitState  `json:"unit,omitempty"`
	Render  Render     `json:"render"`
}

type Option func(*Controller)

func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Controller) { c.l = l }
}

// Controller is one session's view materialization state.
type Controller struct {
	session string
	cfg     Config
	loader  domrepo.UnitLoader
	markers domrepo.MarkerStore
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu      sync.Mutex
	mounted map[models.Tab]bool
	units   map[models.Tab]UnitState
}

// NewController creates a controller for session. The default tab is always
// mounted and always policy "always".
func NewController(session string, cfg Config, loader domrepo.UnitLoader, markers domrepo.MarkerStore, opts ...Option) *Controller {
	policies := make(map[models.Tab]Policy, len(models.AllTabs()))
	for _, t := range models.AllTabs() {
		p, ok := cfg.Policies[t]
		if !ok {
			p = PolicyOnVisit
		}
		policies[t] = p
	}
	policies[models.DefaultTab] = PolicyAlways
	cfg.Policies = policies

	c := &Controller{
		session: session,
		cfg:     cfg,
		loader:  loader,
		markers: markers,
		l:       applogger.Nop(),
		mounted: map[models.Tab]bool{models.DefaultTab: true},
		units:   make(map[models.Tab]UnitState),
	}
	for t, p := range policies {
		if p == PolicyAlways {
			c.mounted[t] = true
		}
		if p == PolicyLazy {
			c.units[t] = UnitIdle
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Visit marks tab as mounted. Mounted tabs are never unmounted.
func (c *Controller) Visit(tab models.Tab) {
	if !tab.Valid() {
		return
	}
	c.mu.Lock()
	c.mounted[tab] = true
	c.mu.Unlock()
}

// Mounted returns mounted tabs in display order.
func (c *Controller) Mounted() []models.Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Tab, 0, len(c.mounted))
	for _, t := range models.AllTabs() {
		if c.mounted[t] {
			out = append(out, t)
		}
	}
	return out
}

func (c *Controller) Policy(tab models.Tab) Policy {
	return c.cfg.Policies[tab]
}

// Unit returns the lazy-load state of tab, or "" for non-lazy tabs.
func (c *Controller) Unit(tab models.Tab) UnitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.units[tab]
}

// Render returns what to draw for tab given whether it is the active tab.
func (c *Controller) Render(tab models.Tab, active bool) Render {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.render(tab, active)
}

func (c *Controller) render(tab models.Tab, active bool) Render {
	if !c.mounted[tab] {
		return RenderUnmounted
	}
	if !active {
		return RenderHidden
	}
	if c.cfg.Policies[tab] != PolicyLazy {
		return RenderContent
	}
	switch c.units[tab] {
	case UnitLoaded:
		return RenderContent
	case UnitFailedOnce:
		return RenderReload
	case UnitInert:
		return RenderInert
	default:
		return RenderLoading
	}
}

// Views summarizes every tab for the given active tab.
func (c *Controller) Views(active models.Tab) []TabView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TabView, 0, len(models.AllTabs()))
	for _, t := range models.AllTabs() {
		out = append(out, TabView{
			Tab:     t,
			Policy:  c.cfg.Policies[t],
			Mounted: c.mounted[t],
			Unit:    c.units[t],
			Render:  c.render(t, t == active),
		})
	}
	return out
}

// Begin moves a lazy unit into loading. From failed_once this is the attempt
// after the reload. Loaded and inert are left as they are.
func (c *Controller) Begin(tab models.Tab) (UnitState, error) {
	if c.cfg.Policies[tab] != PolicyLazy {
		return "", ErrNotLazy
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.units[tab] {
	case UnitIdle, UnitFailedOnce:
		c.units[tab] = UnitLoading
	}
	return c.units[tab], nil
}

// Load drives tab's unit through the loader and records the outcome.
func (c *Controller) Load(ctx context.Context, tab models.Tab) (UnitState, error) {
	st, err := c.Begin(tab)
	if err != nil {
		return "", err
	}
	if st != UnitLoading {
		return st, nil
	}
	if c.loader == nil {
		return c.Report(ctx, tab, fmt.Errorf("no unit loader"))
	}
	return c.Report(ctx, tab, c.loader.Load(ctx, c.cfg.Units[tab]))
}

// Report records a load outcome for tab. A failure sets the session's one-shot
// reload marker; the first failure asks for a reload, any later one is terminal.
func (c *Controller) Report(ctx context.Context, tab models.Tab, loadErr error) (UnitState, error) {
	if c.cfg.Policies[tab] != PolicyLazy {
		return "", ErrNotLazy
	}
	unit := c.cfg.Units[tab]

	c.mu.Lock()
	cur := c.units[tab]
	c.mu.Unlock()
	if cur == UnitLoaded || cur == UnitInert {
		return cur, nil
	}

	next := UnitLoaded
	if loadErr != nil {
		next = c.afterFailure(ctx, unit, loadErr)
	}

	c.mu.Lock()
	// A concurrent report may already have settled the unit.
	if s := c.units[tab]; s == UnitLoaded || s == UnitInert {
		c.mu.Unlock()
		return s, nil
	}
	c.units[tab] = next
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordLazyLoad(unit, string(next))
	}
	return next, nil
}

func (c *Controller) afterFailure(ctx context.Context, unit string, loadErr error) UnitState {
	first, err := c.markers.MarkOnce(ctx, c.session, unit)
	if err != nil {
		c.l.Warn("reload marker unavailable, giving up on unit",
			applogger.String("unit", unit), applogger.Error(err))
		return UnitInert
	}
	if !first {
		c.l.Warn("lazy unit failed again, rendering inert view",
			applogger.String("unit", unit), applogger.Error(loadErr))
		return UnitInert
	}
	c.l.Info("lazy unit failed, requesting one reload",
		applogger.String("unit", unit), applogger.Error(loadErr))
	return UnitFailedOnce
}
