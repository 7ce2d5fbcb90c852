// Package notify implements the single-slot toast notification.
package notify

import (
	"sync"
	"time"
)

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 2 * time.Second

// Toast is the current notification slot.
type Toast struct {
	Message   string `json:"message"`
	IsVisible bool   `json:"is_visible"`
}

// Scheduler runs fn after d. It matches time.AfterFunc.
type Scheduler func(d time.Duration, fn func()) Stopper

// Stopper cancels a scheduled call.
type Stopper interface {
	Stop() bool
}

func realScheduler(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
}

type Option func(*Queue)

func WithDuration(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.duration = d
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(q *Queue) { q.schedule = s }
}

// Queue holds at most one toast. A newer Show replaces the message and restarts
// the hide timer; a timer belonging to an older message never hides a newer one.
type Queue struct {
	// emit keeps listener calls in the order the slot changed.
	emit sync.Mutex

	mu       sync.Mutex
	toast    Toast
	gen      uint64
	timer    Stopper
	duration time.Duration
	schedule Scheduler
	onChange func(Toast)
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{duration: DefaultDuration, schedule: realScheduler}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// OnChange registers fn to receive every slot change.
func (q *Queue) OnChange(fn func(Toast)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Show displays msg and schedules it to hide.
func (q *Queue) Show(msg string) Toast {
	q.emit.Lock()
	defer q.emit.Unlock()

	q.mu.Lock()
	q.gen++
	gen := q.gen
	if q.timer != nil {
		q.timer.Stop()
	}
	q.toast = Toast{Message: msg, IsVisible: true}
	q.timer = q.schedule(q.duration, func() { q.hide(gen) })
	t, listener := q.toast, q.onChange
	q.mu.Unlock()

	if listener != nil {
		listener(t)
	}
	return t
}

// Current returns the slot.
func (q *Queue) Current() Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.toast
}

// Close stops the pending hide timer.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue) hide(gen uint64) {
	q.emit.Lock()
	defer q.emit.Unlock()

	q.mu.Lock()
	if gen != q.gen || !q.toast.IsVisible {
		q.mu.Unlock()
		return
	}
	q.toast.IsVisible = false
	t, listener := q.toast, q.onChange
	q.mu.Unlock()

	if listener != nil {
		listener(t)
	}
}
