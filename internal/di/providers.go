package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"FMPull/internal/domain/models"
	"FMPull/internal/domain/repository"
	"FMPull/internal/handler/api"
	internalrepo "FMPull/internal/repository"
	"FMPull/internal/service/executor"
	"FMPull/internal/service/fmp"
	"FMPull/internal/service/ratelimit"
	"FMPull/internal/usecase"
	"FMPull/pkg/cache"
	pkgch "FMPull/pkg/clickhouse"
	"FMPull/pkg/config"
	xhttp "FMPull/pkg/http"
	pkgkafka "FMPull/pkg/kafka"
	"FMPull/pkg/logger"
	"FMPull/pkg/metrics"
	"FMPull/pkg/postgres"
	"FMPull/pkg/queue"
	"FMPull/pkg/server"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	lgr, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates a lazily connecting Redis client. It is only
// dialled when the queue or cache backend needs it.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func()) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return client, func() { _ = client.Close() }
}

// ProvideCacheStore returns nil when response caching is disabled.
func ProvideCacheStore(cfg *config.Config, rc *redis.Client) (cache.Store, func()) {
	if !cfg.Cache.Enabled {
		return nil, func() {}
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		store = cache.NewRedisCache(rc, cache.WithRedisPrefix("fmpull:cache"))
	case "layered":
		store = cache.NewLayeredCache(
			cache.NewRedisCache(rc, cache.WithRedisPrefix("fmpull:cache")),
			cache.WithLayeredMemorySize(cfg.Cache.MemorySize),
			cache.WithLayeredMemoryTTL(time.Minute),
		)
	default:
		store = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemorySize))
	}
	return store, func() { _ = store.Close() }
}

func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.FMP.Timeout),
		xhttp.WithUserAgent(cfg.FMP.UserAgent),
	)
}

func ProvideTransport(client *xhttp.Client, lgr *logger.Logger) *fmp.Transport {
	return fmp.NewTransport(client, lgr.With(logger.String("component", "transport")))
}

// ProvideSourceFetcher is a single upstream attempt, served from the
// response cache when one is configured. Queue workers use it directly.
func ProvideSourceFetcher(cfg *config.Config, t *fmp.Transport, store cache.Store, lgr *logger.Logger) fmp.Fetcher {
	if store == nil {
		return t
	}
	return fmp.NewCachedFetcher(t, store, cfg.Cache.TTL, lgr)
}

// ProvideRetrier wraps the source fetcher in the inline retry policy used by
// the direct strategy and the screener.
func ProvideRetrier(cfg *config.Config, f fmp.Fetcher, lgr *logger.Logger) *fmp.Retrier {
	policy := fmp.DefaultRetryPolicy()
	policy.Retries = cfg.Retry.Retries
	policy.WaitBeforeQuery = cfg.Retry.WaitBeforeQuery
	policy.WaitBeforeRetry = cfg.Retry.WaitBeforeRetry
	return fmp.NewRetrier(f, policy, lgr)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

func ProvideFetchJob(f fmp.Fetcher, limiter *ratelimit.Limiter, lgr *logger.Logger) *executor.FetchJob {
	return executor.NewFetchJob(f, limiter, lgr.With(logger.String("component", "fetch_job")))
}

// ProvideQueueConfig maps the retry budget onto queue redeliveries: the
// first delivery counts as one of the attempts.
func ProvideQueueConfig(cfg *config.Config) *queue.QueueConfig {
	return &queue.QueueConfig{
		Workers:     cfg.Queue.Workers,
		QueueSize:   cfg.Queue.QueueSize,
		RetryLimit:  cfg.Retry.Retries - 1,
		RetryDelay:  cfg.Retry.WaitBeforeRetry,
		ResultTTL:   cfg.Queue.ResultTTL,
		WaitTimeout: cfg.Queue.WaitTimeout,
	}
}

// ProvideStrategy builds the configured execution strategy. Queue strategies
// get a started backend: an in-process pool running the fetch job, or a
// Redis publisher feeding external workers.
func ProvideStrategy(
	cfg *config.Config,
	retrier *fmp.Retrier,
	job *executor.FetchJob,
	qcfg *queue.QueueConfig,
	rc *redis.Client,
	m repository.Metrics,
	lgr *logger.Logger,
) (repository.ExecutionStrategy, func(), error) {
	slog := lgr.With(logger.String("component", "strategy"))
	if cfg.Fetch.Strategy == "direct" {
		return executor.NewDirect(retrier, m, slog), func() {}, nil
	}

	var (
		backend queue.Backend
		cleanup func()
	)
	switch cfg.Queue.Backend {
	case "redis":
		pub, err := queue.NewRedisPublisher(lgr, qcfg, rc, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
		if err != nil {
			return nil, nil, fmt.Errorf("redis queue publisher: %w", err)
		}
		backend, cleanup = pub, stopper(pub)
	default:
		pool := queue.NewWorkerPool(lgr, qcfg, job)
		if err := pool.Start(); err != nil {
			return nil, nil, fmt.Errorf("worker pool: %w", err)
		}
		backend, cleanup = pool, stopper(pool)
	}

	if cfg.Fetch.Strategy == "queue_async" {
		return executor.NewAsyncQueue(backend, m, slog), cleanup, nil
	}
	return executor.NewBlockingQueue(backend, m, slog), cleanup, nil
}

// ProvideQueueConsumer returns the Redis consumer for the worker process, or
// nil when jobs run in the in-process pool.
func ProvideQueueConsumer(cfg *config.Config, qcfg *queue.QueueConfig, rc *redis.Client, job *executor.FetchJob, lgr *logger.Logger) server.Runner {
	if cfg.Queue.Backend != "redis" {
		return nil
	}
	return queue.NewRedisConsumer(lgr, qcfg, rc, []queue.Job{job}, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
}

// ProvideStartDateStore opens the configured row store and creates its
// table. It returns nil for the "none" backend, which disables incremental
// start dates.
func ProvideStartDateStore(cfg *config.Config, lgr *logger.Logger) (repository.StartDateStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog := lgr.With(logger.String("component", "series_store"))
	switch cfg.StartDates.Backend {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store, err := internalrepo.NewCHSeriesStore(client, cfg.StartDates.Table, slog)
		if err == nil {
			err = client.InitSchema(ctx, store.Schema())
		}
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse series store: %w", err)
		}
		return store, func() { _ = client.Close() }, nil

	case "postgres":
		client, err := postgres.NewClient(ctx,
			postgres.WithURL(cfg.Postgres.URL),
			postgres.WithPoolSize(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store, err := internalrepo.NewPGSeriesStore(client.Pool, cfg.StartDates.Table, slog)
		if err == nil {
			err = store.InitSchema(ctx)
		}
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("postgres series store: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	}
	return nil, func() {}, nil
}

// ProvidePublisher returns the Kafka dataset publisher, or nil when Kafka is
// disabled.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	return pub, func() { _ = pub.Close() }, nil
}

func ProvideCatalogue() *models.Catalogue {
	return models.DefaultCatalogue()
}

func ProvideURLBuilder(cfg *config.Config) (*fmp.URLBuilder, error) {
	b, err := fmp.NewURLBuilder(cfg.FMP.BaseURL, cfg.FMP.APIKey)
	if err != nil {
		return nil, fmt.Errorf("fmp url builder: %w", err)
	}
	return b, nil
}

// ProvideOptions derives the immutable pipeline options from config.
func ProvideOptions(cfg *config.Config) (usecase.Options, error) {
	kinds := make([]models.FailureKind, 0, len(cfg.Fetch.FallbackOn))
	for _, s := range cfg.Fetch.FallbackOn {
		k, err := models.ParseFailureKind(s)
		if err != nil {
			return usecase.Options{}, fmt.Errorf("fetch.fallback_on: %w", err)
		}
		kinds = append(kinds, k)
	}

	var mandatory []string
	if len(cfg.Fetch.Mandatory) > 0 {
		mandatory = cfg.Fetch.Mandatory
	}

	return usecase.Options{
		DefaultStart: cfg.DefaultStartDate(),
		Mandatory:    mandatory,
		Restricted:   cfg.FMP.Restricted,
		Fallback:     usecase.NewFallbackPolicy(kinds...),
	}, nil
}

func ProvideFetcher(
	cat *models.Catalogue,
	strategy repository.ExecutionStrategy,
	store repository.StartDateStore,
	urls *fmp.URLBuilder,
	opts usecase.Options,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.Fetcher {
	return usecase.NewFetcher(cat, strategy, store, urls, opts, m, lgr.With(logger.String("component", "fetcher")))
}

func ProvideCollector(
	cat *models.Catalogue,
	strategy repository.ExecutionStrategy,
	f *usecase.Fetcher,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.Collector {
	return usecase.NewCollector(cat, strategy, f.Fallback(), m, lgr.With(logger.String("component", "collector")))
}

func ProvidePipeline(f *usecase.Fetcher, c *usecase.Collector, p repository.Publisher, lgr *logger.Logger) *usecase.Pipeline {
	return usecase.NewPipeline(f, c, p, lgr)
}

// ProvideHTTPServer builds the worker API around the pipeline.
func ProvideHTTPServer(cfg *config.Config, p *usecase.Pipeline, strategy repository.ExecutionStrategy, lgr *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}

	handler := api.NewFetchEchoHandler(lgr.With(logger.String("component", "api")), p, strategy.Name())
	return xhttp.NewServer(lgr, []xhttp.Handler{handler}, opts...)
}

// ProvideApp creates the worker process.
func ProvideApp(cfg *config.Config, lgr *logger.Logger, srv *xhttp.Server, consumer server.Runner) *server.App {
	return server.New(cfg, lgr, srv, consumer)
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopper(s stoppable) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}
}

func ProvideSymbolSource(r *fmp.Retrier, urls *fmp.URLBuilder) *usecase.SymbolSource {
	return usecase.NewSymbolSource(r, urls)
}

// Runtime bundles what the one-shot CLI commands need.
type Runtime struct {
	Logger   *logger.Logger
	Pipeline *usecase.Pipeline
	Symbols  *usecase.SymbolSource
	Strategy repository.ExecutionStrategy
}
