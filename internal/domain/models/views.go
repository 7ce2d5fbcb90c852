package models

import "time"

// FetchState is the loading/error/success tri-state exposed to rendering.
type FetchState string

const (
	FetchIdle    FetchState = "idle"
	FetchLoading FetchState = "loading"
	FetchSuccess FetchState = "success"
	FetchError   FetchState = "error"
)

type FetchStatus struct {
	State     FetchState `json:"state"`
	Error     string     `json:"error,omitempty"`
	FetchedAt time.Time  `json:"fetched_at,omitempty"`
	HasData   bool       `json:"has_data"`
}

// SignalComparison is the combined-lens verdict for one stock present in both sources.
type SignalComparison struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	VisionSignal Signal `json:"vision_signal"`
	APISignal    Signal `json:"api_signal"`
	Match        bool   `json:"match"`
	Conflict     bool   `json:"conflict"`
}

type Comparison struct {
	Items      []SignalComparison `json:"items"`
	Matched    int                `json:"matched"`
	Conflicts  int                `json:"conflicts"`
	Agreement  float64            `json:"agreement"`
	OnlyVision int                `json:"only_vision"`
	OnlyAPI    int                `json:"only_api"`
}

// DashboardView is everything the renderer needs for the active tab.
type DashboardView struct {
	Tab        Tab            `json:"tab"`
	Source     string         `json:"source,omitempty"`
	Snapshot   *Snapshot      `json:"snapshot,omitempty"`
	Status     FetchStatus    `json:"status"`
	Counts     map[Signal]int `json:"counts,omitempty"`
	Results    []StockResult  `json:"results,omitempty"`
	Comparison *Comparison    `json:"comparison,omitempty"`
	History    string         `json:"history,omitempty"`
}

// HistoryTally groups a history entry's signal counts the way the history panel shows them.
type HistoryTally struct {
	Buy     int `json:"buy"`
	Neutral int `json:"neutral"`
	Sell    int `json:"sell"`
}

type HistoryItemView struct {
	HistoryEntry
	Tally   HistoryTally `json:"tally"`
	IsToday bool         `json:"is_today"`
}

type HistoryView struct {
	LastUpdated   string            `json:"last_updated"`
	TotalRecords  int               `json:"total_records"`
	RetentionDays int               `json:"retention_days"`
	Items         []HistoryItemView `json:"items"`
	Status        FetchStatus       `json:"status"`
}
