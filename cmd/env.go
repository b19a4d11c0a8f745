package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/sells-group/tier-cli/internal/config"
	"github.com/sells-group/tier-cli/internal/db"
	"github.com/sells-group/tier-cli/internal/events"
	"github.com/sells-group/tier-cli/internal/monitoring"
	"github.com/sells-group/tier-cli/internal/resilience"
	"github.com/sells-group/tier-cli/internal/store"
	"github.com/sells-group/tier-cli/internal/tier"
	"github.com/sells-group/tier-cli/internal/upstream"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "tier.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "redis ping %s", cfg.Redis.Addr)
	}
	return rdb, nil
}

// engineEnv holds everything the recalculation commands share.
type engineEnv struct {
	Store    store.Store
	Redis    *redis.Client // nil when queue features are not needed
	Breakers *resilience.Breakers
	Metrics  *monitoring.Metrics
	Service  *tier.Service

	meterProvider *sdkmetric.MeterProvider
}

// Close releases the store, Redis, and flushes telemetry.
func (e *engineEnv) Close() {
	if e.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.meterProvider.Shutdown(ctx); err != nil {
			zap.L().Warn("telemetry shutdown", zap.Error(err))
		}
		cancel()
	}
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initMetrics() (*monitoring.Metrics, *sdkmetric.MeterProvider, error) {
	if !cfg.Telemetry.Enabled {
		return monitoring.NopMetrics(), nil, nil
	}
	mp := monitoring.NewMeterProvider(time.Minute)
	m, err := monitoring.NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, err
	}
	return m, mp, nil
}

func newUpstreamClient(service string, sc config.ServiceConfig, breakers *resilience.Breakers) *upstream.Client {
	policy := resilience.PolicyFromConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Strategy,
	)
	policy.Jitter = 0.1
	return upstream.NewClient(service, sc.BaseURL,
		upstream.WithToken(sc.Token),
		upstream.WithTimeouts(sc.ConnectTimeout(), sc.ReadTimeout()),
		upstream.WithRateLimit(sc.RatePerSec),
		upstream.WithPolicy(policy),
		upstream.WithBreaker(breakers.For(service)),
	)
}

func buildGateway(breakers *resilience.Breakers) *upstream.Gateway {
	delius := newUpstreamClient(upstream.ServiceDelius, cfg.Upstream.Delius, breakers)
	assessment := newUpstreamClient(upstream.ServiceAssessment, cfg.Upstream.Assessment, breakers)
	return upstream.NewGateway(
		upstream.NewDeliusClient(delius),
		upstream.NewAssessmentClient(assessment),
		cfg.Assessment.Validity(),
		time.Now,
	)
}

// initEngine wires the store, upstream gateway, telemetry, and the tier
// service. withRedis also connects Redis and enables change notifications.
func initEngine(ctx context.Context, mode string, withRedis bool) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &engineEnv{
		Breakers: resilience.NewBreakers(resilience.BreakerFromConfig(
			cfg.Circuit.FailureThreshold,
			cfg.Circuit.ResetTimeoutSecs,
		)),
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st

	env.Metrics, env.meterProvider, err = initMetrics()
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init telemetry")
	}

	opts := []tier.Option{tier.WithMetrics(env.Metrics)}
	if withRedis {
		rdb, err := initRedis(ctx)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Redis = rdb
		opts = append(opts, tier.WithNotifier(events.NewNotifier(rdb, cfg.Queue.NotifyStream, time.Now)))
	}

	env.Service = tier.NewService(buildGateway(env.Breakers), st, opts...)
	return env, nil
}
