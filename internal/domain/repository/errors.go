package repository

import (
	"errors"
	"fmt"
)

// ErrFetchFailed is the generic fetch-failure signal. Error bodies are never parsed.
var ErrFetchFailed = errors.New("fetch failed")

// FetchError wraps a failed fetch of one cache key.
type FetchError struct {
	Source string
	Key    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Source, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }
