package signals

import (
	"testing"

	"SignalBoard/internal/domain/models"
)

func result(code string, s models.Signal) models.StockResult {
	return models.StockResult{Code: code, Name: code, Signal: s}
}

func TestCountBySignalInitialisesEverySignal(t *testing.T) {
	snap := &models.Snapshot{Results: []models.StockResult{
		result("A", models.SignalBuy),
		result("B", models.SignalBuy),
		result("C", models.SignalNeutral),
	}}
	got := CountBySignal(snap, models.MarketAll, nil)
	want := Counts{
		models.SignalStrongBuy:  0,
		models.SignalBuy:        2,
		models.SignalNeutral:    1,
		models.SignalSell:       0,
		models.SignalStrongSell: 0,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), got)
	}
	for s, n := range want {
		if got[s] != n {
			t.Fatalf("%s: expected %d, got %d", s, n, got[s])
		}
	}
}

func TestCountBySignalRespectsMarket(t *testing.T) {
	cls := NewStaticClassifier([]string{"A"}, []string{"B"})
	snap := &models.Snapshot{Results: []models.StockResult{
		result("A", models.SignalBuy),
		result("B", models.SignalBuy),
		result("Z", models.SignalBuy),
	}}
	if n := CountBySignal(snap, models.MarketKOSPI, cls)[models.SignalBuy]; n != 1 {
		t.Fatalf("kospi: expected 1, got %d", n)
	}
	if n := CountBySignal(snap, models.MarketAll, cls)[models.SignalBuy]; n != 3 {
		t.Fatalf("all: expected 3, got %d", n)
	}
}

func TestFilterResultsPreservesOrder(t *testing.T) {
	snap := &models.Snapshot{Results: []models.StockResult{
		result("A", models.SignalBuy),
		result("B", models.SignalSell),
		result("C", models.SignalBuy),
	}}
	buy := models.SignalBuy
	got := FilterResults(snap, models.MarketAll, &buy, nil)
	if len(got) != 2 || got[0].Code != "A" || got[1].Code != "C" {
		t.Fatalf("unexpected %+v", got)
	}
	if all := FilterResults(snap, models.MarketAll, nil, nil); len(all) != 3 || all[1].Code != "B" {
		t.Fatalf("nil signal should pass everything: %+v", all)
	}
}

func TestFilterResultsAppliesMarketThenSignal(t *testing.T) {
	cls := NewStaticClassifier([]string{"A", "B"}, []string{"C"})
	snap := &models.Snapshot{Results: []models.StockResult{
		result("A", models.SignalSell),
		result("B", models.SignalBuy),
		result("C", models.SignalBuy),
	}}
	buy := models.SignalBuy
	got := FilterResults(snap, models.MarketKOSPI, &buy, cls)
	if len(got) != 1 || got[0].Code != "B" {
		t.Fatalf("unexpected %+v", got)
	}
	if got := FilterResults(snap, models.MarketKOSDAQ, nil, nil); len(got) != 0 {
		t.Fatalf("no classifier means no concrete market match: %+v", got)
	}
}

func TestFilterResultsNilSnapshot(t *testing.T) {
	if got := FilterResults(nil, models.MarketAll, nil, nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestTallyGroupsDirections(t *testing.T) {
	entry := models.HistoryEntry{Signals: map[models.Signal]int{
		models.SignalStrongBuy:  1,
		models.SignalBuy:        2,
		models.SignalNeutral:    3,
		models.SignalSell:       4,
		models.SignalStrongSell: 5,
	}}
	got := Tally(entry)
	if got.Buy != 3 || got.Neutral != 3 || got.Sell != 9 {
		t.Fatalf("unexpected tally %+v", got)
	}
}

func TestCompareFindsMatchesAndConflicts(t *testing.T) {
	vision := &models.Snapshot{Results: []models.StockResult{
		result("A", models.SignalBuy),
		result("B", models.SignalStrongBuy),
		result("C", models.SignalNeutral),
		result("D", models.SignalSell),
	}}
	api := &models.Snapshot{Results: []models.StockResult{
		result("A", models.SignalBuy),
		result("B", models.SignalSell),
		result("C", models.SignalBuy),
		result("E", models.SignalBuy),
	}}
	got := Compare(vision, api)
	if len(got.Items) != 3 || got.Matched != 1 || got.Conflicts != 1 {
		t.Fatalf("unexpected comparison %+v", got)
	}
	if got.OnlyVision != 1 || got.OnlyAPI != 1 {
		t.Fatalf("unexpected only counts %+v", got)
	}
	if got.Agreement < 0.33 || got.Agreement > 0.34 {
		t.Fatalf("unexpected agreement %f", got.Agreement)
	}
	if !got.Items[1].Conflict || got.Items[2].Conflict {
		t.Fatalf("neutral versus buy is not a conflict: %+v", got.Items)
	}
}

func TestCompareWithMissingSource(t *testing.T) {
	got := Compare(&models.Snapshot{}, nil)
	if got.Items == nil || len(got.Items) != 0 || got.Agreement != 0 {
		t.Fatalf("unexpected %+v", got)
	}
}
