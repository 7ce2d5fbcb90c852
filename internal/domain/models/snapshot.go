package models

// Signal is one of the five ordinal categories assigned upstream to a stock.
// Values are the wire strings used by the batch pipeline.
type Signal string

const (
	SignalStrongBuy  Signal = "적극매수"
	SignalBuy        Signal = "매수"
	SignalNeutral    Signal = "중립"
	SignalSell       Signal = "매도"
	SignalStrongSell Signal = "적극매도"
)

// AllSignals returns the signals from strong buy to strong sell.
func AllSignals() []Signal {
	return []Signal{SignalStrongBuy, SignalBuy, SignalNeutral, SignalSell, SignalStrongSell}
}

// Valid reports whether s is one of the five known signals.
func (s Signal) Valid() bool {
	switch s {
	case SignalStrongBuy, SignalBuy, SignalNeutral, SignalSell, SignalStrongSell:
		return true
	}
	return false
}

// Direction returns +1 for buy signals, -1 for sell signals and 0 for neutral.
func (s Signal) Direction() int {
	switch s {
	case SignalStrongBuy, SignalBuy:
		return 1
	case SignalSell, SignalStrongSell:
		return -1
	default:
		return 0
	}
}

type Market string

const (
	MarketAll    Market = "all"
	MarketKOSPI  Market = "kospi"
	MarketKOSDAQ Market = "kosdaq"
)

func (m Market) Valid() bool {
	return m == MarketAll || m == MarketKOSPI || m == MarketKOSDAQ
}

// Tab is an analysis lens of the dashboard.
type Tab string

const (
	TabVision   Tab = "vision"
	TabAPI      Tab = "api"
	TabCombined Tab = "combined"

	DefaultTab = TabVision
)

// AllTabs returns tabs in display order.
func AllTabs() []Tab {
	return []Tab{TabVision, TabAPI, TabCombined}
}

func (t Tab) Valid() bool {
	return t == TabVision || t == TabAPI || t == TabCombined
}

type StockResult struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Signal       Signal `json:"signal"`
	Reason       string `json:"reason"`
	CaptureTime  string `json:"capture_time,omitempty"`
	AnalysisTime string `json:"analysis_time,omitempty"`
}

// Snapshot is one point-in-time set of analysis results. Treated as immutable once fetched.
type Snapshot struct {
	Date        string        `json:"date"`
	TotalStocks int           `json:"total_stocks"`
	Results     []StockResult `json:"results"`
}

type HistoryEntry struct {
	Date        string         `json:"date"`
	Filename    string         `json:"filename"`
	TotalStocks int            `json:"total_stocks"`
	Signals     map[Signal]int `json:"signals"`
}

// HistoryIndex catalogs retained snapshots. Retention is enforced upstream.
type HistoryIndex struct {
	LastUpdated   string         `json:"last_updated"`
	TotalRecords  int            `json:"total_records"`
	RetentionDays int            `json:"retention_days"`
	History       []HistoryEntry `json:"history"`
}
