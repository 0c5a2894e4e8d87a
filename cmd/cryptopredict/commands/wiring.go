package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/cryptopredict/internal/api"
	"github.com/wonny/cryptopredict/internal/api/handlers"
	"github.com/wonny/cryptopredict/internal/brain"
	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/data/memory"
	"github.com/wonny/cryptopredict/internal/data/repos"
	"github.com/wonny/cryptopredict/internal/events"
	"github.com/wonny/cryptopredict/internal/external/modelsvc"
	"github.com/wonny/cryptopredict/internal/layers"
	"github.com/wonny/cryptopredict/internal/marketdata"
	"github.com/wonny/cryptopredict/internal/persona"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/internal/scope"
	"github.com/wonny/cryptopredict/pkg/config"
	"github.com/wonny/cryptopredict/pkg/database"
	"github.com/wonny/cryptopredict/pkg/httputil"
	"github.com/wonny/cryptopredict/pkg/kafka"
	"github.com/wonny/cryptopredict/pkg/logger"
	"github.com/wonny/cryptopredict/pkg/metrics"
	"github.com/wonny/cryptopredict/pkg/redis"
)

const defaultContextName = "Default watchlist"

// app holds the wired collaborators of one process
// ⭐ SSOT: 의존성 조립은 이 파일에서만
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	policy     *policy.Config
	policyHash string

	watchlists contracts.WatchlistStore
	history    contracts.RunHistoryStore
	adapter    *persona.Adapter
	orch       *brain.Orchestrator

	hub     *handlers.StreamHub
	metrics *metrics.Recorder
	checks  map[string]api.HealthCheck

	closers []func()
}

type wireOptions struct {
	// stream mounts the websocket hub as a run publisher
	stream bool
	// publish sends completed runs to Kafka when it is enabled
	publish bool
}

// newApp wires stores, providers, scorers and publishers from configuration
func newApp(ctx context.Context, cfg *config.Config, opts wireOptions) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    logger.New(cfg),
		checks: make(map[string]api.HealthCheck),
	}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	pol, hash, err := loadPolicy(cfg.Analysis.PolicyPath, a.log)
	if err != nil {
		return nil, err
	}
	a.policy, a.policyHash = pol, hash

	// 1. Stores
	if err := a.wireStores(ctx); err != nil {
		return nil, err
	}

	// 2. Market data (+ Redis cache)
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rc.Close() })
	if rc.Enabled() {
		a.checks["redis"] = rc.Ping
	}
	provider := a.marketData(rc)

	// 3. Layer chain
	var overrides map[contracts.LayerID]contracts.ModelScorer
	if cfg.Model.BaseURL != "" {
		client := modelsvc.NewClient(httputil.New(a.log, cfg.Model.Timeout), cfg.Model.BaseURL, cfg.Model.RateLimit, cfg.Model.Burst, a.log)
		overrides = client.Scorers()
		a.log.WithField("url", cfg.Model.BaseURL).Info("Using remote model service")
	}
	evaluators := layers.NewChain(pol, a.log, overrides)

	// 4. Publishers
	a.adapter = persona.NewAdapter(a.history, a.log)
	publishers, err := a.publishers(opts)
	if err != nil {
		return nil, err
	}

	orchOpts := []brain.Option{}
	if len(publishers) > 0 {
		orchOpts = append(orchOpts, brain.WithPublisher(publishers))
	}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
		orchOpts = append(orchOpts, brain.WithRecorder(a.metrics))
	}

	// 5. Orchestrator
	a.orch, err = brain.NewOrchestrator(brain.Deps{
		Resolver:   scope.NewResolver(a.watchlists, a.log),
		Provider:   provider,
		Evaluators: evaluators,
		History:    a.history,
		Adapter:    a.adapter,
		Policy:     pol,
		PolicyHash: hash,
	}, a.log, orchOpts...)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *app) wireStores(ctx context.Context) error {
	cfg := a.cfg

	if cfg.StoreBackend != config.StorePostgres {
		a.watchlists = memory.NewWatchlistStore(&contracts.WatchlistContext{
			ID:     cfg.Analysis.DefaultContextID,
			Name:   defaultContextName,
			Assets: cfg.Analysis.DefaultAssets,
		})
		a.history = memory.NewRunStore()
		a.log.Warn("Using in-memory stores: run history is lost on exit")
		return nil
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.checks["postgres"] = db.Ping

	wl := repos.NewWatchlistRepository(db.Pool, cfg.Analysis.DefaultContextID)
	def, err := wl.EnsureDefault(ctx, defaultContextName, cfg.Analysis.DefaultAssets)
	if err != nil {
		return fmt.Errorf("ensure default context: %w", err)
	}
	a.log.WithFields(map[string]interface{}{
		"context_id": def.ID,
		"version":    def.Version,
		"assets":     len(def.Assets),
	}).Info("Connected to database")

	a.watchlists = wl
	a.history = repos.NewRunRepository(db.Pool)
	return nil
}

// marketData picks the provider: snapshot file, remote service, or synthetic
func (a *app) marketData(rc *redis.Client) contracts.MarketDataProvider {
	cfg := a.cfg.MarketData

	var provider contracts.MarketDataProvider
	switch {
	case cfg.SnapshotPath != "":
		a.log.WithField("path", cfg.SnapshotPath).Info("Replaying market data snapshot")
		return marketdata.NewFileProvider(cfg.SnapshotPath)

	case cfg.BaseURL != "":
		client := httputil.New(a.log, cfg.Timeout)
		if cfg.RateLimit > 0 {
			if rc.Enabled() {
				// 여러 인스턴스가 한도를 공유
				client = client.WithLimiter(redis.NewRateLimiter(rc, "cryptopredict:ratelimit").Bind(redis.MarketDataRateLimit(cfg.RateLimit)))
			} else {
				client = client.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit))
			}
		}
		provider = marketdata.NewHTTPProvider(client, cfg.BaseURL, a.log)
		a.log.WithField("url", cfg.BaseURL).Info("Using market data service")

	default:
		provider = marketdata.NewSyntheticProvider(marketdata.DefaultCatalog())
		a.log.Warn("No market data source configured, using synthetic data")
	}

	if rc.Enabled() {
		provider = marketdata.NewCachedProvider(provider, redis.NewCache(rc, "cryptopredict:md"), a.log)
	}
	return provider
}

func (a *app) publishers(opts wireOptions) (events.FanOut, error) {
	var out events.FanOut

	if opts.stream {
		a.hub = handlers.NewStreamHub(a.adapter, a.log)
		a.closers = append(a.closers, a.hub.Close)
		out = append(out, a.hub)
	}

	if opts.publish && a.cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(
			kafka.WithBrokers(a.cfg.Kafka.Brokers),
			kafka.WithTopic(a.cfg.Kafka.Topic),
		)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		a.closers = append(a.closers, func() { _ = producer.Close() })
		out = append(out, events.NewKafkaPublisher(producer, 5*time.Second, a.log))
		a.log.WithField("topic", producer.Topic()).Info("Publishing runs to Kafka")
	}

	return out, nil
}

// routerDeps exposes the wired collaborators to the HTTP router
func (a *app) routerDeps() api.RouterDeps {
	deps := api.RouterDeps{
		Analysis: handlers.NewAnalysisHandler(a.orch, a.history, a.adapter, a.log),
		Stream:   a.hub,
		Checks:   a.checks,
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics
	}
	return deps
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadPolicy reads the policy file. A missing file falls back to the built-in policy.
func loadPolicy(path string, log *logger.Logger) (*policy.Config, string, error) {
	pol := policy.Default()

	if path != "" {
		loaded, _, err := policy.Load(path)
		switch {
		case err == nil:
			pol = loaded
		case errors.Is(err, fs.ErrNotExist):
			log.WithField("path", path).Warn("Policy file not found, using built-in policy")
		default:
			return nil, "", fmt.Errorf("load policy %s: %w", path, err)
		}
	}

	for _, w := range policy.Warn(pol) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	hash, err := policy.Hash(pol)
	if err != nil {
		return nil, "", fmt.Errorf("hash policy: %w", err)
	}
	return pol, hash, nil
}
