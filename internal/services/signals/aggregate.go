// Package signals holds the pure queries the dashboard derives from a snapshot.
package signals

import (
	"SignalBoard/internal/domain/models"
)

// Counts maps every signal to its number of stocks. All five signals are present.
type Counts map[models.Signal]int

// MarketClassifier tells which market a stock code is listed on.
type MarketClassifier interface {
	MarketOf(code string) (models.Market, bool)
}

// StaticClassifier classifies codes from fixed KOSPI and KOSDAQ lists.
type StaticClassifier struct {
	markets map[string]models.Market
}

func NewStaticClassifier(kospi, kosdaq []string) *StaticClassifier {
	m := make(map[string]models.Market, len(kospi)+len(kosdaq))
	for _, c := range kospi {
		m[c] = models.MarketKOSPI
	}
	for _, c := range kosdaq {
		m[c] = models.MarketKOSDAQ
	}
	return &StaticClassifier{markets: m}
}

func (s *StaticClassifier) MarketOf(code string) (models.Market, bool) {
	if s == nil {
		return "", false
	}
	m, ok := s.markets[code]
	return m, ok
}

// inMarket reports whether r belongs to market. Unclassified codes only match "all".
func inMarket(r models.StockResult, market models.Market, cls MarketClassifier) bool {
	if market == "" || market == models.MarketAll {
		return true
	}
	if cls == nil {
		return false
	}
	m, ok := cls.MarketOf(r.Code)
	return ok && m == market
}

// CountBySignal counts the snapshot's results per signal within market.
func CountBySignal(snap *models.Snapshot, market models.Market, cls MarketClassifier) Counts {
	counts := make(Counts, 5)
	for _, s := range models.AllSignals() {
		counts[s] = 0
	}
	if snap == nil {
		return counts
	}
	for _, r := range snap.Results {
		if !inMarket(r, market, cls) {
			continue
		}
		if _, ok := counts[r.Signal]; ok {
			counts[r.Signal]++
		}
	}
	return counts
}

// FilterResults applies the market filter, then the signal filter, keeping input order.
// A nil signal keeps every signal.
func FilterResults(snap *models.Snapshot, market models.Market, signal *models.Signal, cls MarketClassifier) []models.StockResult {
	if snap == nil {
		return nil
	}
	out := make([]models.StockResult, 0, len(snap.Results))
	for _, r := range snap.Results {
		if !inMarket(r, market, cls) {
			continue
		}
		if signal != nil && r.Signal != *signal {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Tally groups a history entry's counts into buy, neutral and sell.
func Tally(entry models.HistoryEntry) models.HistoryTally {
	var t models.HistoryTally
	for s, n := range entry.Signals {
		switch s.Direction() {
		case 1:
			t.Buy += n
		case -1:
			t.Sell += n
		default:
			if s == models.SignalNeutral {
				t.Neutral += n
			}
		}
	}
	return t
}
