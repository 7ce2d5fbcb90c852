package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	"SignalBoard/pkg/cache"
	xhttp "SignalBoard/pkg/http"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	fail   map[string]error
	calls  map[string]int
	gate   chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: make(map[string]string),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	body, ok := f.bodies[path]
	if !ok {
		return nil, &xhttp.StatusError{Code: http.StatusNotFound}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeFetcher) set(path, body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
	f.fail[path] = err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SnapshotRefreshed
}

func (p *recordingPublisher) PublishEvent(_ context.Context, kind, key string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := payload.(SnapshotRefreshed); ok && kind == "snapshot.refreshed" {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

const latestBody = `{"date":"2025-01-02","total_stocks":2,"results":[{"code":"005930","name":"삼성전자","signal":"매수","reason":"r"},{"code":"000660","name":"SK하이닉스","signal":"매도","reason":"r"}]}`

func newTestRepo(t *testing.T, opts ...SnapshotOption) (*SnapshotRepository, *fakeFetcher, *fakeClock) {
	t.Helper()
	f := newFakeFetcher()
	clock := &fakeClock{now: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)}
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	opts = append([]SnapshotOption{WithClock(clock.Now)}, opts...)
	return NewSnapshotRepository("vision", f, mc, opts...), f, clock
}

func TestSnapshotRepositoryServesFreshEntryWithoutFetch(t *testing.T) {
	repo, f, clock := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	ctx := context.Background()

	snap, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap.Date != "2025-01-02" || len(snap.Results) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	clock.Advance(4 * time.Minute)
	if _, err := repo.Latest(ctx); err != nil {
		t.Fatalf("latest again: %v", err)
	}
	if n := f.count("/results/latest.json"); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestSnapshotRepositoryRefetchesStaleEntry(t *testing.T) {
	repo, f, clock := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	ctx := context.Background()

	if _, err := repo.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	clock.Advance(6 * time.Minute)
	f.set("/results/latest.json", `{"date":"2025-01-03","total_stocks":0,"results":[]}`, nil)

	snap, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if snap.Date != "2025-01-03" {
		t.Fatalf("expected refreshed snapshot, got %s", snap.Date)
	}
	if st := repo.Status(KeyLatest); st.State != models.FetchSuccess || !st.FetchedAt.Equal(clock.Now()) {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSnapshotRepositoryFailureKeepsPreviousEntry(t *testing.T) {
	repo, f, clock := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	ctx := context.Background()

	if _, err := repo.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	clock.Advance(10 * time.Minute)
	f.set("/results/latest.json", "", &xhttp.StatusError{Code: http.StatusInternalServerError})

	_, err := repo.Latest(ctx)
	if !errors.Is(err, domrepo.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	var fe *domrepo.FetchError
	if !errors.As(err, &fe) || fe.Key != string(KeyLatest) || fe.Source != "vision" {
		t.Fatalf("expected FetchError for latest, got %v", err)
	}

	v, ok := repo.Peek(ctx, KeyLatest)
	if !ok {
		t.Fatalf("previous entry should remain readable")
	}
	if v.(*models.Snapshot).Date != "2025-01-02" {
		t.Fatalf("previous entry replaced: %+v", v)
	}
	if st := repo.Status(KeyLatest); st.State != models.FetchError || !st.HasData {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSnapshotRepositoryMalformedJSONIsFailure(t *testing.T) {
	repo, f, _ := newTestRepo(t)
	f.set("/results/latest.json", `{"date":`, nil)

	_, err := repo.Latest(context.Background())
	if !errors.Is(err, domrepo.ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
	if _, ok := repo.Peek(context.Background(), KeyLatest); ok {
		t.Fatalf("malformed payload must not be cached")
	}
}

func TestSnapshotRepositoryHistoryNeverStale(t *testing.T) {
	repo, f, clock := newTestRepo(t)
	path := "/results/history/2025-01-01.json"
	f.set(path, `{"date":"2025-01-01","total_stocks":0,"results":[]}`, nil)
	ctx := context.Background()

	if _, err := repo.History(ctx, "2025-01-01.json"); err != nil {
		t.Fatalf("history: %v", err)
	}
	clock.Advance(30 * 24 * time.Hour)
	if _, err := repo.History(ctx, "2025-01-01.json"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if n := f.count(path); n != 1 {
		t.Fatalf("historical snapshot refetched %d times", n)
	}
}

func TestSnapshotRepositoryRejectsPathTraversal(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	if _, err := repo.History(context.Background(), "../secret"); err == nil {
		t.Fatalf("expected invalid filename error")
	}
	if _, err := ParseKey("history:a/b.json"); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if k, err := ParseKey("history:2025-01-01.json"); err != nil || k.Class() != "history" {
		t.Fatalf("unexpected key %q err %v", k, err)
	}
}

func TestSnapshotRepositoryHistoryIndex(t *testing.T) {
	repo, f, _ := newTestRepo(t, WithPathPrefix("/api_results/"))
	f.set("/api_results/history_index.json", `{"last_updated":"2025-01-02","total_records":1,"retention_days":30,"history":[{"date":"2025-01-02","filename":"2025-01-02.json","total_stocks":3,"signals":{"매수":2,"중립":1}}]}`, nil)

	idx, err := repo.HistoryIndex(context.Background())
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(idx.History) != 1 || idx.History[0].Signals[models.SignalBuy] != 2 {
		t.Fatalf("unexpected index %+v", idx)
	}
}

func TestSnapshotRepositoryConcurrentReadsShareOneFetch(t *testing.T) {
	repo, f, _ := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	f.gate = make(chan struct{})

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Latest(context.Background()); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if failures != 0 {
		t.Fatalf("%d reads failed", failures)
	}
	if n := f.count("/results/latest.json"); n > 2 {
		t.Fatalf("expected shared fetch, got %d fetches", n)
	}
}

func TestSnapshotRepositoryAbandonedCallerDoesNotCancelSharedFetch(t *testing.T) {
	repo, f, _ := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	f.gate = make(chan struct{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := repo.Latest(ctxA)
		errA <- err
	}()
	time.Sleep(20 * time.Millisecond)

	errB := make(chan error, 1)
	go func() {
		_, err := repo.Latest(context.Background())
		errB <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(f.gate)

	if err := <-errB; err != nil {
		t.Fatalf("live caller failed with the abandoned one: %v", err)
	}
	if _, ok := repo.Peek(context.Background(), KeyLatest); !ok {
		t.Fatalf("fetch result was not cached")
	}
	if st := repo.Status(KeyLatest); st.State != models.FetchSuccess {
		t.Fatalf("unexpected status %+v", st)
	}
	if n := f.count("/results/latest.json"); n != 1 {
		t.Fatalf("expected one shared fetch, got %d", n)
	}
}

func TestSnapshotRepositoryCurrentServesStaleWhileRefreshing(t *testing.T) {
	repo, f, clock := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	ctx := context.Background()

	if _, err := repo.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	clock.Advance(10 * time.Minute)
	f.set("/results/latest.json", `{"date":"2025-01-03","total_stocks":0,"results":[]}`, nil)
	f.gate = make(chan struct{})

	v, stale, err := repo.Current(ctx, KeyLatest)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !stale || v.(*models.Snapshot).Date != "2025-01-02" {
		t.Fatalf("expected the stale snapshot, got stale=%v %+v", stale, v)
	}
	if st := repo.Status(KeyLatest); st.State != models.FetchLoading {
		t.Fatalf("expected loading while refreshing, got %+v", st)
	}

	close(f.gate)
	deadline := time.Now().Add(2 * time.Second)
	for repo.Status(KeyLatest).State != models.FetchSuccess {
		if time.Now().After(deadline) {
			t.Fatalf("refresh never landed: %+v", repo.Status(KeyLatest))
		}
		time.Sleep(5 * time.Millisecond)
	}
	v, stale, err = repo.Current(ctx, KeyLatest)
	if err != nil || stale || v.(*models.Snapshot).Date != "2025-01-03" {
		t.Fatalf("expected refreshed snapshot, got stale=%v err=%v %+v", stale, err, v)
	}
}

func TestSnapshotRepositoryCurrentBlocksWhenAbsent(t *testing.T) {
	repo, f, _ := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)

	v, stale, err := repo.Current(context.Background(), KeyLatest)
	if err != nil || stale || v.(*models.Snapshot).Date != "2025-01-02" {
		t.Fatalf("expected fetched snapshot, got stale=%v err=%v", stale, err)
	}
	if _, _, err := repo.Current(context.Background(), Key("history:../x.json")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSnapshotRepositoryInvalidateForcesRefetch(t *testing.T) {
	repo, f, _ := newTestRepo(t)
	f.set("/results/latest.json", latestBody, nil)
	ctx := context.Background()

	if _, err := repo.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if err := repo.Invalidate(ctx, KeyLatest); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok := repo.Peek(ctx, KeyLatest); !ok {
		t.Fatalf("invalidate must keep the payload")
	}
	if _, err := repo.Latest(ctx); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if n := f.count("/results/latest.json"); n != 2 {
		t.Fatalf("expected refetch after invalidate, got %d fetches", n)
	}
}

func TestSnapshotRepositoryPublishesRefreshEvents(t *testing.T) {
	pub := &recordingPublisher{}
	repo, f, _ := newTestRepo(t, WithEvents(pub))
	f.set("/results/latest.json", latestBody, nil)

	if _, err := repo.Latest(context.Background()); err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Date != "2025-01-02" || pub.events[0].Key != KeyLatest {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}

func TestSnapshotRepositoryStatusIdleBeforeFirstRead(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	if st := repo.Status(KeyLatest); st.State != models.FetchIdle || st.HasData {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestHTTPFetcherRetriesOnceThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"ignored"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(xhttp.NewClient(), srv.URL+"/", 2, time.Millisecond)
	_, err := f.Fetch(context.Background(), "results/latest.json")
	var se *xhttp.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status error, got %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits)
	}
}

func TestHTTPFetcherSucceedsAfterRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/results/latest.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(latestBody))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(xhttp.NewClient(), srv.URL, 2, time.Millisecond)
	body, err := f.Fetch(context.Background(), "/results/latest.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != latestBody {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestCacheMarkerStoreMarksOnce(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheMarkerStore(mc, time.Hour)
	ctx := context.Background()

	first, err := s.MarkOnce(ctx, "sess", "combined")
	if err != nil || !first {
		t.Fatalf("first mark: %v %v", first, err)
	}
	again, err := s.MarkOnce(ctx, "sess", "combined")
	if err != nil || again {
		t.Fatalf("second mark should not be first: %v %v", again, err)
	}
	other, _ := s.MarkOnce(ctx, "other", "combined")
	if !other {
		t.Fatalf("markers must be per session")
	}
}

func TestAssetLoaderResolvesAgainstBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/assets/Combined.js" {
			_, _ = w.Write([]byte("export default 1"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewAssetLoader(xhttp.NewClient(), srv.URL)
	if err := l.Load(context.Background(), "assets/Combined.js"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := l.Load(context.Background(), "/assets/Missing.js"); err == nil {
		t.Fatalf("expected error for missing unit")
	}
}
