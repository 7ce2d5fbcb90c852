package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	"SignalBoard/pkg/cache"
	applogger "SignalBoard/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Key identifies a cached resource within one data source.
type Key string

const (
	KeyLatest       Key = "latest"
	KeyHistoryIndex Key = "historyIndex"

	historyKeyPrefix = "history:"
)

// ErrInvalidKey is returned for malformed keys and history filenames.
var ErrInvalidKey = errors.New("invalid cache key")

// HistoryKey returns the key of a historical snapshot file.
func HistoryKey(filename string) Key {
	return Key(historyKeyPrefix + filename)
}

// ParseKey validates a key received from outside the process.
func ParseKey(s string) (Key, error) {
	switch {
	case s == string(KeyLatest), s == string(KeyHistoryIndex):
		return Key(s), nil
	case strings.HasPrefix(s, historyKeyPrefix):
		if err := validFilename(strings.TrimPrefix(s, historyKeyPrefix)); err != nil {
			return "", err
		}
		return Key(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
}

// Class groups keys by staleness policy and metric label.
func (k Key) Class() string {
	if strings.HasPrefix(string(k), historyKeyPrefix) {
		return "history"
	}
	return string(k)
}

func (k Key) filename() string {
	return strings.TrimPrefix(string(k), historyKeyPrefix)
}

func validFilename(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: history filename %q", ErrInvalidKey, name)
	}
	return nil
}

// Entry is the cached form of one resource. Payload holds the upstream JSON.
type Entry struct {
	Key       Key             `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// StalenessPolicy maps key classes to staleness windows. A window <= 0 never goes stale.
type StalenessPolicy struct {
	Live       time.Duration
	Historical time.Duration
}

// For returns the window for key.
func (p StalenessPolicy) For(key Key) time.Duration {
	if key.Class() == "history" {
		return p.Historical
	}
	return p.Live
}

// DefaultStalenessPolicy is short-TTL for live data and cache-forever for history.
func DefaultStalenessPolicy() StalenessPolicy {
	return StalenessPolicy{Live: 5 * time.Minute}
}

// SnapshotRefreshed is published after a successful fetch.
type SnapshotRefreshed struct {
	Source    string    `json:"source"`
	Key       Key       `json:"key"`
	Date      string    `json:"date,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SnapshotOption configures SnapshotRepository.
type SnapshotOption func(*SnapshotRepository)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SnapshotOption {
	return func(r *SnapshotRepository) { r.now = now }
}

// WithStaleness sets the per-class staleness windows.
func WithStaleness(p StalenessPolicy) SnapshotOption {
	return func(r *SnapshotRepository) { r.policy = p }
}

// WithPathPrefix sets the upstream path prefix, e.g. "/results".
func WithPathPrefix(prefix string) SnapshotOption {
	return func(r *SnapshotRepository) { r.prefix = strings.TrimSuffix(prefix, "/") }
}

// WithEvents publishes refresh events.
func WithEvents(p domrepo.EventPublisher) SnapshotOption {
	return func(r *SnapshotRepository) { r.events = p }
}

// WithMetrics records cache and fetch metrics.
func WithMetrics(m domrepo.Metrics) SnapshotOption {
	return func(r *SnapshotRepository) { r.metrics = m }
}

// WithFetchTimeout bounds a shared refresh. Refreshes run detached from the
// caller that started them, so this is their only deadline.
func WithFetchTimeout(d time.Duration) SnapshotOption {
	return func(r *SnapshotRepository) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *applogger.Logger) SnapshotOption {
	return func(r *SnapshotRepository) { r.l = l }
}

// SnapshotRepository is a read-through cache of snapshots and the history index
// for one data source. Entries are replaced whole and are never evicted; a failed
// refresh leaves the previous entry readable.
type SnapshotRepository struct {
	source  string
	prefix  string
	fetcher domrepo.Fetcher
	store   cache.Service
	policy  StalenessPolicy
	now     func() time.Time
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger

	fetchTimeout time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	status map[Key]models.FetchStatus
}

// NewSnapshotRepository creates a repository for source backed by store.
func NewSnapshotRepository(source string, fetcher domrepo.Fetcher, store cache.Service, opts ...SnapshotOption) *SnapshotRepository {
	r := &SnapshotRepository{
		source:  source,
		prefix:  "/results",
		fetcher: fetcher,
		store:   store,
		policy:  DefaultStalenessPolicy(),
		now:     time.Now,
		l:       applogger.Nop(),
		status:  make(map[Key]models.FetchStatus),

		fetchTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Source returns the data source name.
func (r *SnapshotRepository) Source() string { return r.source }

// Latest returns the latest snapshot using the live staleness window.
func (r *SnapshotRepository) Latest(ctx context.Context) (*models.Snapshot, error) {
	v, err := r.Get(ctx, KeyLatest, r.policy.For(KeyLatest))
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot), nil
}

// History returns a historical snapshot using the historical staleness window.
func (r *SnapshotRepository) History(ctx context.Context, filename string) (*models.Snapshot, error) {
	if err := validFilename(filename); err != nil {
		return nil, err
	}
	key := HistoryKey(filename)
	v, err := r.Get(ctx, key, r.policy.For(key))
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot), nil
}

// HistoryIndex returns the history index using the live staleness window.
func (r *SnapshotRepository) HistoryIndex(ctx context.Context) (*models.HistoryIndex, error) {
	v, err := r.Get(ctx, KeyHistoryIndex, r.policy.For(KeyHistoryIndex))
	if err != nil {
		return nil, err
	}
	return v.(*models.HistoryIndex), nil
}

// Get returns the payload for key, fetching it when absent or older than staleness.
// The result is *models.Snapshot or *models.HistoryIndex depending on the key.
func (r *SnapshotRepository) Get(ctx context.Context, key Key, staleness time.Duration) (interface{}, error) {
	entry, ok := r.load(ctx, key)
	if ok && r.fresh(entry, staleness) {
		if v, err := decodePayload(key, entry.Payload); err == nil {
			r.recordHit(key)
			return v, nil
		}
		r.l.Warn("snapshot cache entry undecodable, refetching",
			applogger.String("source", r.source), applogger.String("key", string(key)))
	}
	r.recordMiss(key)

	select {
	case res := <-r.refreshShared(ctx, key):
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		// The refresh keeps running and still lands in the cache.
		return nil, ctx.Err()
	}
}

// Current returns the payload for key under its staleness policy without
// waiting on a refetch when an older payload exists: a stale entry is returned
// with stale=true while a background refresh replaces it. Only an absent entry
// blocks on the fetch.
func (r *SnapshotRepository) Current(ctx context.Context, key Key) (v interface{}, stale bool, err error) {
	if key.Class() == "history" {
		if err := validFilename(strings.TrimPrefix(string(key), historyKeyPrefix)); err != nil {
			return nil, false, err
		}
	}
	entry, ok := r.load(ctx, key)
	if ok {
		if v, err := decodePayload(key, entry.Payload); err == nil {
			if r.fresh(entry, r.policy.For(key)) {
				r.recordHit(key)
				return v, false, nil
			}
			r.recordMiss(key)
			r.markLoading(key)
			r.refreshShared(ctx, key)
			return v, true, nil
		}
	}
	v, err = r.Get(ctx, key, r.policy.For(key))
	return v, false, err
}

// refreshShared starts or joins the one in-flight refresh of key. The refresh
// is detached from ctx: a caller going away neither cancels it for the others
// nor stops its result from being cached.
func (r *SnapshotRepository) refreshShared(ctx context.Context, key Key) <-chan singleflight.Result {
	detached := context.WithoutCancel(ctx)
	return r.group.DoChan(string(key), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(detached, r.fetchTimeout)
		defer cancel()
		return r.refresh(fctx, key)
	})
}

// Peek returns the cached payload for key regardless of age, without fetching.
func (r *SnapshotRepository) Peek(ctx context.Context, key Key) (interface{}, bool) {
	entry, ok := r.load(ctx, key)
	if !ok {
		return nil, false
	}
	v, err := decodePayload(key, entry.Payload)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Status returns the loading/error/success state of key.
func (r *SnapshotRepository) Status(key Key) models.FetchStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.status[key]
	if !ok {
		return models.FetchStatus{State: models.FetchIdle}
	}
	return st
}

// Invalidate makes the next read of key refetch. The cached payload stays
// readable through Peek until a refresh succeeds.
func (r *SnapshotRepository) Invalidate(ctx context.Context, key Key) error {
	entry, ok := r.load(ctx, key)
	if !ok {
		return nil
	}
	entry.FetchedAt = time.Time{}
	if err := r.store.Set(ctx, r.storeKey(key), entry, 0); err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}

func (r *SnapshotRepository) refresh(ctx context.Context, key Key) (interface{}, error) {
	r.markLoading(key)

	start := r.now()
	raw, err := r.fetcher.Fetch(ctx, r.path(key))
	var v interface{}
	if err == nil {
		v, err = decodePayload(key, raw)
	}
	if r.metrics != nil {
		r.metrics.RecordFetch(r.source, key.Class(), r.now().Sub(start), err)
	}
	if err != nil {
		ferr := &domrepo.FetchError{Source: r.source, Key: string(key), Err: err}
		r.markFailed(key, ferr)
		r.l.Warn("snapshot fetch failed",
			applogger.String("source", r.source),
			applogger.String("key", string(key)),
			applogger.Error(err))
		return nil, ferr
	}

	entry := Entry{Key: key, Payload: raw, FetchedAt: r.now()}
	if err := r.store.Set(ctx, r.storeKey(key), entry, 0); err != nil {
		// The fetched payload is still served; only the cache write is lost.
		r.l.Error("snapshot cache write failed",
			applogger.String("key", string(key)), applogger.Error(err))
	}
	r.markSucceeded(key, entry.FetchedAt)
	r.publish(ctx, key, v, entry.FetchedAt)
	return v, nil
}

func (r *SnapshotRepository) load(ctx context.Context, key Key) (Entry, bool) {
	var entry Entry
	if err := r.store.Get(ctx, r.storeKey(key), &entry); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.l.Warn("snapshot cache read failed",
				applogger.String("key", string(key)), applogger.Error(err))
		}
		return Entry{}, false
	}
	return entry, true
}

func (r *SnapshotRepository) fresh(e Entry, staleness time.Duration) bool {
	if e.FetchedAt.IsZero() {
		return false
	}
	if staleness <= 0 {
		return true
	}
	return r.now().Sub(e.FetchedAt) < staleness
}

func (r *SnapshotRepository) publish(ctx context.Context, key Key, v interface{}, at time.Time) {
	if r.events == nil {
		return
	}
	ev := SnapshotRefreshed{Source: r.source, Key: key, FetchedAt: at}
	if s, ok := v.(*models.Snapshot); ok {
		ev.Date = s.Date
	}
	if err := r.events.PublishEvent(ctx, "snapshot.refreshed", r.storeKey(key), ev); err != nil {
		r.l.Warn("snapshot event publish failed", applogger.Error(err))
	}
}

func (r *SnapshotRepository) markLoading(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status[key]
	st.State = models.FetchLoading
	r.status[key] = st
}

func (r *SnapshotRepository) markFailed(key Key, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status[key]
	st.State = models.FetchError
	st.Error = err.Error()
	r.status[key] = st
}

func (r *SnapshotRepository) markSucceeded(key Key, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[key] = models.FetchStatus{State: models.FetchSuccess, FetchedAt: at, HasData: true}
}

// HasData reports whether any payload is cached for key.
func (r *SnapshotRepository) HasData(ctx context.Context, key Key) bool {
	_, ok := r.load(ctx, key)
	return ok
}

func (r *SnapshotRepository) recordHit(key Key) {
	if r.metrics != nil {
		r.metrics.RecordCacheHit(r.source, key.Class())
	}
}

func (r *SnapshotRepository) recordMiss(key Key) {
	if r.metrics != nil {
		r.metrics.RecordCacheMiss(r.source, key.Class())
	}
}

func (r *SnapshotRepository) storeKey(key Key) string {
	return cache.GenerateKey(r.source, string(key))
}

func (r *SnapshotRepository) path(key Key) string {
	switch key {
	case KeyLatest:
		return r.prefix + "/latest.json"
	case KeyHistoryIndex:
		return r.prefix + "/history_index.json"
	default:
		return r.prefix + "/history/" + key.filename()
	}
}

func decodePayload(key Key, raw []byte) (interface{}, error) {
	if key == KeyHistoryIndex {
		var idx models.HistoryIndex
		if err := json.Unmarshal(raw, &idx); err != nil {
			return nil, fmt.Errorf("decode history index: %w", err)
		}
		return &idx, nil
	}
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
