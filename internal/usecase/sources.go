package usecase

import (
	"context"
	"errors"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/repository"
)

const (
	SourceVision = "vision"
	SourceAPI    = "api"
)

// ErrSourceDisabled is returned when a request names a source that is not configured.
var ErrSourceDisabled = errors.New("data source disabled")

// SnapshotSource is the read side of one snapshot repository.
type SnapshotSource interface {
	Source() string
	Latest(ctx context.Context) (*models.Snapshot, error)
	HistoryIndex(ctx context.Context) (*models.HistoryIndex, error)
	Current(ctx context.Context, key repository.Key) (interface{}, bool, error)
	Peek(ctx context.Context, key repository.Key) (interface{}, bool)
	Status(key repository.Key) models.FetchStatus
	Invalidate(ctx context.Context, key repository.Key) error
}

// Sources holds the configured data sources. API is nil when disabled.
type Sources struct {
	Vision SnapshotSource
	API    SnapshotSource
}

// Get returns the source by name.
func (s Sources) Get(name string) (SnapshotSource, error) {
	switch name {
	case SourceVision:
		if s.Vision != nil {
			return s.Vision, nil
		}
	case SourceAPI:
		if s.API != nil {
			return s.API, nil
		}
	}
	return nil, ErrSourceDisabled
}

// All returns the configured sources, vision first.
func (s Sources) All() []SnapshotSource {
	out := make([]SnapshotSource, 0, 2)
	if s.Vision != nil {
		out = append(out, s.Vision)
	}
	if s.API != nil {
		out = append(out, s.API)
	}
	return out
}
