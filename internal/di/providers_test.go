package di

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FMPull/internal/domain/models"
	"FMPull/internal/service/executor"
	"FMPull/pkg/cache"
	"FMPull/pkg/config"
	"FMPull/pkg/logger"
	"FMPull/pkg/metrics"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func TestProvideOptions(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Fetch.FallbackOn = []string{"transport"}
	cfg.FMP.Restricted = true

	opts, err := ProvideOptions(cfg)
	require.NoError(t, err)
	assert.True(t, opts.Restricted)
	assert.Nil(t, opts.Mandatory)
	assert.True(t, opts.Fallback.Allows(models.FailureTransport))
	assert.False(t, opts.Fallback.Allows(models.FailureEmpty))
	assert.Equal(t, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC), opts.DefaultStart)

	cfg.Fetch.FallbackOn = []string{"sideways"}
	_, err = ProvideOptions(cfg)
	require.Error(t, err)
}

func TestProvideQueueConfigCountsFirstDelivery(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Retry.Retries = 3

	q := ProvideQueueConfig(cfg)
	assert.Equal(t, 2, q.RetryLimit)
	assert.Equal(t, cfg.Retry.WaitBeforeRetry, q.RetryDelay)
	assert.Equal(t, cfg.Queue.Workers, q.Workers)
}

func TestProvideStoresAndPublisherDisabled(t *testing.T) {
	cfg := defaultConfig(t)

	s, cleanup, err := ProvideStartDateStore(cfg, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, s)

	pub, pcleanup, err := ProvidePublisher(cfg)
	require.NoError(t, err)
	defer pcleanup()
	assert.Nil(t, pub)
}

func TestProvideCacheStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaultConfig(t)
	cfg.Redis.Addr = mr.Addr()

	rc, rcleanup := ProvideRedisClient(cfg)
	defer rcleanup()

	store, cleanup := ProvideCacheStore(cfg, rc)
	cleanup()
	assert.Nil(t, store)

	cfg.Cache.Enabled = true
	cfg.Cache.Backend = "layered"
	store, cleanup = ProvideCacheStore(cfg, rc)
	defer cleanup()
	require.IsType(t, &cache.LayeredCache{}, store)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestProvideStrategy(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := defaultConfig(t)
	cfg.Redis.Addr = mr.Addr()
	lgr := logger.NewNop()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	rc, rcleanup := ProvideRedisClient(cfg)
	defer rcleanup()
	transport := ProvideTransport(ProvideHTTPClient(cfg), lgr)
	src := ProvideSourceFetcher(cfg, transport, nil, lgr)
	retrier := ProvideRetrier(cfg, src, lgr)
	job := ProvideFetchJob(src, ProvideLimiter(cfg), lgr)
	qcfg := ProvideQueueConfig(cfg)

	cases := []struct {
		strategy, backend, name string
	}{
		{"direct", "local", executor.StrategyDirect},
		{"queue_blocking", "local", executor.StrategyQueueBlocking},
		{"queue_async", "local", executor.StrategyQueueAsync},
		{"queue_async", "redis", executor.StrategyQueueAsync},
	}
	for _, tc := range cases {
		t.Run(tc.strategy+"/"+tc.backend, func(t *testing.T) {
			cfg.Fetch.Strategy = tc.strategy
			cfg.Queue.Backend = tc.backend
			s, cleanup, err := ProvideStrategy(cfg, retrier, job, qcfg, rc, m, lgr)
			require.NoError(t, err)
			defer cleanup()
			assert.Equal(t, tc.name, s.Name())
		})
	}

	cfg.Queue.Backend = "redis"
	assert.NotNil(t, ProvideQueueConsumer(cfg, qcfg, rc, job, lgr))
	cfg.Queue.Backend = "local"
	assert.Nil(t, ProvideQueueConsumer(cfg, qcfg, rc, job, lgr))
}
