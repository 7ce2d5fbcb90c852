package repository

import (
	"context"
	"time"
)

// Fetcher retrieves a raw JSON resource by path relative to the upstream base.
// Implementations own the retry policy; callers see one outcome.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// EventPublisher publishes domain events to external consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, kind string, key string, payload interface{}) error
	Close() error
}

// MarkerStore holds one-shot flags keyed by session that survive page reloads.
type MarkerStore interface {
	// MarkOnce sets the marker and reports whether this call was the one that set it.
	MarkOnce(ctx context.Context, session, name string) (bool, error)
}

// UnitLoader loads an asynchronous code unit (a lazily loaded view bundle).
type UnitLoader interface {
	Load(ctx context.Context, unit string) error
}

type Metrics interface {
	RecordCacheHit(source, keyClass string)
	RecordCacheMiss(source, keyClass string)
	RecordFetch(source, keyClass string, d time.Duration, err error)
	RecordLazyLoad(unit, outcome string)
	RecordPrefetch(task string, err error)
}
