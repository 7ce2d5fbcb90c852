package models

// Requests for dashboard HTTP endpoints.

type TabRequest struct {
	Tab string `json:"tab" validate:"required,oneof=vision api combined"`
}

type MarketRequest struct {
	Market string `json:"market" default:"all" validate:"oneof=all kospi kosdaq"`
}

// SignalRequest carries an optional signal; an empty value clears the filter.
type SignalRequest struct {
	Signal string `json:"signal" validate:"omitempty,oneof=적극매수 매수 중립 매도 적극매도"`
}

type ToggleSignalRequest struct {
	Signal string `json:"signal" validate:"required,oneof=적극매수 매수 중립 매도 적극매도"`
}

type HistoryRequest struct {
	Filename string `json:"filename" validate:"omitempty,max=255,filename"`
}

// ViewLoadRequest asks the server to load a lazy unit when Outcome is empty,
// or records the outcome the browser observed.
type ViewLoadRequest struct {
	Outcome string `json:"outcome" validate:"omitempty,oneof=loaded failed"`
	Error   string `json:"error" validate:"omitempty,max=1024"`
}

type ToastRequest struct {
	Message string `json:"message" validate:"required,max=200"`
}

type InvalidateRequest struct {
	Source string `json:"source" default:"vision" validate:"oneof=vision api"`
	Key    string `json:"key" validate:"required,max=300"`
}

type HistoryListRequest struct {
	Source string `query:"source" default:"vision" validate:"oneof=vision api"`
	Limit  int    `query:"limit" default:"30" validate:"gte=1,lte=365"`
}
