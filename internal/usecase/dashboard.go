package usecase

import (
	"context"
	"errors"
	"time"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	"SignalBoard/internal/repository"
	"SignalBoard/internal/services/navigation"
	"SignalBoard/internal/services/signals"
	applogger "SignalBoard/pkg/logger"
	"SignalBoard/pkg/util"
)

// Dashboard composes what the renderer needs from navigation state and cached snapshots.
type Dashboard struct {
	sources Sources
	cls     signals.MarketClassifier
	now     func() time.Time
	l       *applogger.Logger
}

func NewDashboard(sources Sources, cls signals.MarketClassifier, l *applogger.Logger) *Dashboard {
	if l == nil {
		l = applogger.Nop()
	}
	return &Dashboard{sources: sources, cls: cls, now: time.Now, l: l}
}

// SetClock overrides the time source used for "today" markers.
func (d *Dashboard) SetClock(now func() time.Time) { d.now = now }

// View builds the active tab's view. Fetch failures do not fail the view: the
// last cached snapshot is returned with an error status.
func (d *Dashboard) View(ctx context.Context, st navigation.State) (*models.DashboardView, error) {
	filename := ""
	if st.ViewingHistoryFilename != nil {
		filename = *st.ViewingHistoryFilename
	}
	view := &models.DashboardView{Tab: st.ActiveTab, History: filename}

	primary := SourceVision
	if st.ActiveTab == models.TabAPI {
		primary = SourceAPI
	}
	src, err := d.sources.Get(primary)
	if err != nil {
		return nil, err
	}
	view.Source = src.Source()

	snap, status, err := d.load(ctx, src, filename)
	if err != nil {
		return nil, err
	}
	view.Snapshot = snap
	view.Status = status
	view.Counts = signals.CountBySignal(snap, st.ActiveMarket, d.cls)
	view.Results = signals.FilterResults(snap, st.ActiveMarket, st.ActiveSignal, d.cls)

	if st.ActiveTab == models.TabCombined {
		cmp := models.Comparison{Items: []models.SignalComparison{}}
		if api, err := d.sources.Get(SourceAPI); err == nil {
			other, _, err := d.load(ctx, api, filename)
			if err != nil {
				return nil, err
			}
			cmp = signals.Compare(snap, other)
		}
		view.Comparison = &cmp
	}
	return view, nil
}

// HistoryList returns up to limit history entries of source with their tallies.
func (d *Dashboard) HistoryList(ctx context.Context, source string, limit int) (*models.HistoryView, error) {
	src, err := d.sources.Get(source)
	if err != nil {
		return nil, err
	}
	var idx *models.HistoryIndex
	v, _, ferr := src.Current(ctx, repository.KeyHistoryIndex)
	switch {
	case ferr == nil:
		idx = v.(*models.HistoryIndex)
	case errors.Is(ferr, domrepo.ErrFetchFailed):
		if v, ok := src.Peek(ctx, repository.KeyHistoryIndex); ok {
			idx = v.(*models.HistoryIndex)
		}
	default:
		return nil, ferr
	}

	status := src.Status(repository.KeyHistoryIndex)
	view := &models.HistoryView{Items: []models.HistoryItemView{}, Status: status}
	if idx == nil {
		return view, nil
	}
	view.Status.HasData = true
	view.LastUpdated = idx.LastUpdated
	view.TotalRecords = idx.TotalRecords
	view.RetentionDays = idx.RetentionDays

	now := d.now()
	for i, e := range idx.History {
		if limit > 0 && i >= limit {
			break
		}
		view.Items = append(view.Items, models.HistoryItemView{
			HistoryEntry: e,
			Tally:        signals.Tally(e),
			IsToday:      util.IsToday(e.Date, now),
		})
	}
	return view, nil
}

// Invalidate marks a cached key of source for refetch on next read.
func (d *Dashboard) Invalidate(ctx context.Context, source, key string) error {
	src, err := d.sources.Get(source)
	if err != nil {
		return err
	}
	k, err := repository.ParseKey(key)
	if err != nil {
		return err
	}
	return src.Invalidate(ctx, k)
}

// load returns the snapshot for filename (latest when empty). A stale entry is
// served while it refreshes; fetch failures fall back to the cached payload and
// other errors are returned.
func (d *Dashboard) load(ctx context.Context, src SnapshotSource, filename string) (*models.Snapshot, models.FetchStatus, error) {
	key := repository.KeyLatest
	if filename != "" {
		key = repository.HistoryKey(filename)
	}

	var snap *models.Snapshot
	v, stale, err := src.Current(ctx, key)
	switch {
	case err == nil:
		snap = v.(*models.Snapshot)
		if stale {
			d.l.Debug("serving stale snapshot while refreshing",
				applogger.String("source", src.Source()), applogger.String("key", string(key)))
		}
	case errors.Is(err, domrepo.ErrFetchFailed):
		d.l.Debug("serving cached snapshot after fetch failure",
			applogger.String("source", src.Source()), applogger.String("key", string(key)))
		if v, ok := src.Peek(ctx, key); ok {
			snap = v.(*models.Snapshot)
		}
	default:
		return nil, models.FetchStatus{}, err
	}

	status := src.Status(key)
	status.HasData = snap != nil
	return snap, status, nil
}
