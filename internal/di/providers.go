package di

import (
	"fmt"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/domain/repository"
	"SignalBoard/internal/handler/api"
	"SignalBoard/internal/handler/ws"
	internalrepo "SignalBoard/internal/repository"
	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/services/session"
	"SignalBoard/internal/services/signals"
	"SignalBoard/internal/services/views"
	"SignalBoard/internal/usecase"
	"SignalBoard/pkg/cache"
	"SignalBoard/pkg/config"
	xhttp "SignalBoard/pkg/http"
	pkgkafka "SignalBoard/pkg/kafka"
	applogger "SignalBoard/pkg/logger"
	"SignalBoard/pkg/metrics"
	"SignalBoard/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideCache creates the snapshot cache: memory only, or memory over Redis.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	// Unbounded: snapshot entries are never evicted.
	mem := cache.NewMemoryCache(cache.WithMemoryCleanup(cfg.Cache.CleanupInterval))
	if !cfg.Cache.Redis.Enabled {
		return mem, func() { _ = mem.Close() }, nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdle, cfg.Cache.Redis.PoolTimeout),
	)
	if err != nil {
		_ = mem.Close()
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	l.Info("redis cache connected", applogger.String("addr", cfg.Cache.Redis.Addr))

	layered := cache.NewLayeredCache(mem, rc)
	return layered, func() {
		if err := layered.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}, nil
}

// ProvideEventPublisher creates the Kafka event publisher, or nil when events are disabled.
func ProvideEventPublisher(cfg *config.Config, l *applogger.Logger) (repository.EventPublisher, func(), error) {
	if !cfg.Events.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Events.Brokers),
		pkgkafka.WithCompression(cfg.Events.Compression),
		pkgkafka.WithMaxAttempts(cfg.Events.MaxAttempts),
		pkgkafka.WithAsync(cfg.Events.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.Info("kafka events enabled",
		applogger.Strings("brokers", cfg.Events.Brokers),
		applogger.String("topic", cfg.Events.Topic))

	pub := internalrepo.NewKafkaEventPublisher(producer, cfg.Events.Topic)
	return pub, func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideHTTPClient creates the upstream HTTP client.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Upstream.Timeout))
}

// ProvideFetcher creates the upstream snapshot fetcher.
func ProvideFetcher(client *xhttp.Client, cfg *config.Config) repository.Fetcher {
	return internalrepo.NewHTTPFetcher(client, cfg.Upstream.BaseURL, cfg.Upstream.MaxAttempts, cfg.Upstream.Backoff)
}

// ProvideSources creates one snapshot repository per configured data source.
func ProvideSources(
	cfg *config.Config,
	fetcher repository.Fetcher,
	store cache.Service,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) usecase.Sources {
	opts := func(prefix string) []internalrepo.SnapshotOption {
		o := []internalrepo.SnapshotOption{
			internalrepo.WithPathPrefix(prefix),
			internalrepo.WithStaleness(internalrepo.StalenessPolicy{
				Live:       cfg.Staleness.Live,
				Historical: cfg.Staleness.Historical,
			}),
			internalrepo.WithMetrics(m),
			internalrepo.WithLogger(l),
			// Covers every attempt of a shared fetch plus its backoff.
			internalrepo.WithFetchTimeout(time.Duration(cfg.Upstream.MaxAttempts) * (cfg.Upstream.Timeout + cfg.Upstream.Backoff)),
		}
		if events != nil {
			o = append(o, internalrepo.WithEvents(events))
		}
		return o
	}

	s := usecase.Sources{
		Vision: internalrepo.NewSnapshotRepository(usecase.SourceVision, fetcher, store, opts(cfg.Sources.Vision.Prefix)...),
	}
	if cfg.Sources.API.Enabled {
		s.API = internalrepo.NewSnapshotRepository(usecase.SourceAPI, fetcher, store, opts(cfg.Sources.API.Prefix)...)
	}
	return s
}

// ProvideClassifier creates the market classifier from configured code lists.
func ProvideClassifier(cfg *config.Config) signals.MarketClassifier {
	return signals.NewStaticClassifier(cfg.Markets.KOSPI, cfg.Markets.KOSDAQ)
}

func ProvidePrefetcher(sources usecase.Sources, m repository.Metrics, l *applogger.Logger) *usecase.Prefetcher {
	return usecase.NewPrefetcher(sources, m, l)
}

func ProvideDashboard(sources usecase.Sources, cls signals.MarketClassifier, l *applogger.Logger) *usecase.Dashboard {
	return usecase.NewDashboard(sources, cls, l)
}

// ProvideViewsConfig maps configured policies onto tabs, keeping the defaults
// for tabs the config does not mention.
func ProvideViewsConfig(cfg *config.Config) views.Config {
	vc := views.DefaultConfig()
	for tab, p := range cfg.Views.Policies {
		vc.Policies[models.Tab(tab)] = views.Policy(p)
	}
	for tab, unit := range cfg.Views.LazyUnits {
		vc.Units[models.Tab(tab)] = unit
	}
	return vc
}

// ProvideSessionManager creates the session manager and its per-session factory.
func ProvideSessionManager(
	cfg *config.Config,
	vc views.Config,
	store cache.Service,
	client *xhttp.Client,
	m repository.Metrics,
	l *applogger.Logger,
) (*session.Manager, func()) {
	base := cfg.Views.AssetBase
	if base == "" {
		base = cfg.Upstream.BaseURL
	}
	mgr := session.NewManager(session.Factory{
		Views:       vc,
		Loader:      internalrepo.NewAssetLoader(client, base),
		Markers:     internalrepo.NewCacheMarkerStore(store, cfg.Views.MarkerTTL),
		ViewOptions: []views.Option{views.WithMetrics(m), views.WithLogger(l)},
		ToastFor:    cfg.Notify.DisplayDuration,
	}, session.WithMaxIdle(cfg.Session.MaxIdle), session.WithLogger(l))
	return mgr, mgr.Close
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHandlers lists every HTTP handler registered on the server.
func ProvideHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	sessions *session.Manager,
	dashboard *usecase.Dashboard,
	limiter *ratelimit.Limiter,
) []xhttp.Handler {
	return []xhttp.Handler{
		api.NewDashboardEchoHandler(l, sessions, dashboard, api.RateLimit{
			Limiter: limiter,
			Burst:   cfg.Session.Burst,
			PerSec:  cfg.Session.RateLimit,
		}),
		ws.NewPushHandler(l, sessions, cfg.Server.CORSOrigins...),
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	return xhttp.NewServer(l, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	prefetcher *usecase.Prefetcher,
	sessions *session.Manager,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, l, srv, prefetcher, sessions, limiter)
}
