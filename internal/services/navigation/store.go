// Package navigation holds the per-session navigation state of the dashboard.
// All mutation goes through Store methods so the state invariants hold after
// every call: the history flag follows the filename, a market change clears the
// signal filter, and the default tab stays mounted.
package navigation

import (
	"errors"
	"sync"

	"SignalBoard/internal/domain/models"
)

var (
	ErrUnknownTab    = errors.New("navigation: unknown tab")
	ErrUnknownMarket = errors.New("navigation: unknown market")
	ErrUnknownSignal = errors.New("navigation: unknown signal")
)

// State is an immutable snapshot of the navigation state.
type State struct {
	ActiveTab              models.Tab     `json:"active_tab"`
	ActiveMarket           models.Market  `json:"active_market"`
	ActiveSignal           *models.Signal `json:"active_signal"`
	IsViewingHistory       bool           `json:"is_viewing_history"`
	ViewingHistoryFilename *string        `json:"viewing_history_filename"`
	MountedTabs            []models.Tab   `json:"mounted_tabs"`
	HistoryPanelOpen       bool           `json:"history_panel_open"`
}

// Materializer tracks which tabs have been mounted.
type Materializer interface {
	Visit(tab models.Tab)
	Mounted() []models.Tab
}

// Store owns one session's navigation state.
type Store struct {
	// emit serializes mutations with their listener calls so listeners see
	// states in the order they were applied. mu alone guards the fields.
	emit sync.Mutex

	mu        sync.Mutex
	tab       models.Tab
	market    models.Market
	signal    models.Signal // empty when unset
	filename  string        // empty when viewing latest
	panelOpen bool

	views    Materializer
	onChange func(State)
}

// NewStore returns a store on the default tab, all markets, no filters.
func NewStore(views Materializer) *Store {
	return &Store{
		tab:    models.DefaultTab,
		market: models.MarketAll,
		views:  views,
	}
}

// OnChange registers fn to receive every new state. Only one listener is kept.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) SetActiveTab(tab models.Tab) (State, error) {
	if !tab.Valid() {
		return s.State(), ErrUnknownTab
	}
	return s.mutate(func() {
		s.tab = tab
		s.views.Visit(tab)
	}), nil
}

// SetMarketFilter selects a market and clears the signal filter.
func (s *Store) SetMarketFilter(market models.Market) (State, error) {
	if !market.Valid() {
		return s.State(), ErrUnknownMarket
	}
	return s.mutate(func() {
		s.market = market
		s.signal = ""
	}), nil
}

// SetSignalFilter sets the signal filter directly; nil clears it.
func (s *Store) SetSignalFilter(signal *models.Signal) (State, error) {
	if signal != nil && !signal.Valid() {
		return s.State(), ErrUnknownSignal
	}
	return s.mutate(func() {
		if signal == nil {
			s.signal = ""
			return
		}
		s.signal = *signal
	}), nil
}

// ToggleSignalFilter clears the filter if it equals signal, otherwise selects signal.
func (s *Store) ToggleSignalFilter(signal models.Signal) (State, error) {
	if !signal.Valid() {
		return s.State(), ErrUnknownSignal
	}
	return s.mutate(func() {
		if s.signal == signal {
			s.signal = ""
			return
		}
		s.signal = signal
	}), nil
}

func (s *Store) ClearSignalFilter() State {
	return s.mutate(func() { s.signal = "" })
}

// SetViewingHistory switches to a historical snapshot; nil or "" returns to latest.
func (s *Store) SetViewingHistory(filename *string) State {
	return s.mutate(func() {
		if filename == nil {
			s.filename = ""
			return
		}
		s.filename = *filename
	})
}

// ResetToLatest leaves history view and clears both filters. Mounted tabs are kept.
func (s *Store) ResetToLatest() State {
	return s.mutate(func() {
		s.filename = ""
		s.market = models.MarketAll
		s.signal = ""
		s.panelOpen = false
	})
}

func (s *Store) ToggleHistoryPanel() State {
	return s.mutate(func() { s.panelOpen = !s.panelOpen })
}

func (s *Store) OpenHistoryPanel() State {
	return s.mutate(func() { s.panelOpen = true })
}

func (s *Store) CloseHistoryPanel() State {
	return s.mutate(func() { s.panelOpen = false })
}

func (s *Store) mutate(fn func()) State {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	fn()
	st := s.snapshot()
	listener := s.onChange
	s.mu.Unlock()

	if listener != nil {
		listener(st)
	}
	return st
}

func (s *Store) snapshot() State {
	st := State{
		ActiveTab:        s.tab,
		ActiveMarket:     s.market,
		IsViewingHistory: s.filename != "",
		MountedTabs:      s.views.Mounted(),
		HistoryPanelOpen: s.panelOpen,
	}
	if s.signal != "" {
		sig := s.signal
		st.ActiveSignal = &sig
	}
	if s.filename != "" {
		name := s.filename
		st.ViewingHistoryFilename = &name
	}
	return st
}
