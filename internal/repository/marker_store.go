package repository

import (
	"context"
	"time"

	"SignalBoard/pkg/cache"
)

// CacheMarkerStore keeps one-shot reload markers in the cache lock space, so a
// Redis-backed cache keeps them across process restarts.
type CacheMarkerStore struct {
	store cache.Service
	ttl   time.Duration
}

func NewCacheMarkerStore(store cache.Service, ttl time.Duration) *CacheMarkerStore {
	return &CacheMarkerStore{store: store, ttl: ttl}
}

// MarkOnce sets the marker for (session, name) and reports whether it was unset before.
func (s *CacheMarkerStore) MarkOnce(ctx context.Context, session, name string) (bool, error) {
	return s.store.TryLock(ctx, "reload:"+session+":"+name, s.ttl)
}
