package usecase

import (
	"context"
	"sync"
	"time"

	domrepo "SignalBoard/internal/domain/repository"
	applogger "SignalBoard/pkg/logger"
)

// PrefetchReport lists every warmed task and the ones that failed.
type PrefetchReport struct {
	Tasks  []string          `json:"tasks"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Prefetcher warms the latest snapshot and history index of every source.
type Prefetcher struct {
	sources Sources
	metrics domrepo.Metrics
	l       *applogger.Logger
	timeout time.Duration
}

func NewPrefetcher(sources Sources, metrics domrepo.Metrics, l *applogger.Logger) *Prefetcher {
	if l == nil {
		l = applogger.Nop()
	}
	return &Prefetcher{sources: sources, metrics: metrics, l: l, timeout: 30 * time.Second}
}

// Warm runs all tasks concurrently. Each task settles on its own; a failure
// never cancels or delays the others.
func (p *Prefetcher) Warm(ctx context.Context) PrefetchReport {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type task struct {
		name string
		run  func(context.Context) error
	}
	var tasks []task
	for _, src := range p.sources.All() {
		src := src
		tasks = append(tasks,
			task{src.Source() + ":latest", func(ctx context.Context) error {
				_, err := src.Latest(ctx)
				return err
			}},
			task{src.Source() + ":historyIndex", func(ctx context.Context) error {
				_, err := src.HistoryIndex(ctx)
				return err
			}},
		)
	}

	type item struct {
		name string
		err  error
	}
	ch := make(chan item, len(tasks))
	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			ch <- item{t.name, t.run(ctx)}
		}(t)
	}
	go func() { wg.Wait(); close(ch) }()

	rep := PrefetchReport{Errors: map[string]string{}}
	for _, t := range tasks {
		rep.Tasks = append(rep.Tasks, t.name)
	}
	for it := range ch {
		if p.metrics != nil {
			p.metrics.RecordPrefetch(it.name, it.err)
		}
		if it.err != nil {
			rep.Errors[it.name] = it.err.Error()
		}
	}

	if len(rep.Errors) == 0 {
		rep.Errors = nil
		p.l.Info("prefetch complete", applogger.Strings("tasks", rep.Tasks))
	} else {
		p.l.Warn("prefetch finished with errors",
			applogger.Int("failed", len(rep.Errors)), applogger.Int("total", len(rep.Tasks)))
	}
	return rep
}
