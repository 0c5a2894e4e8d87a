package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/logger"
	"github.com/wonny/cryptopredict/pkg/redis"
)

// CachedProvider memoizes windows in Redis.
// Cache failures never fail a run; the inner provider is called instead.
type CachedProvider struct {
	inner  contracts.MarketDataProvider
	cache  *redis.Cache
	logger *logger.Logger
}

var _ contracts.MarketDataProvider = (*CachedProvider)(nil)

// NewCachedProvider wraps inner with cache
func NewCachedProvider(inner contracts.MarketDataProvider, cache *redis.Cache, log *logger.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		logger: log.Component("marketdata_cache"),
	}
}

// FetchWindow serves from cache when possible
func (p *CachedProvider) FetchWindow(ctx context.Context, layer contracts.LayerID, scope *contracts.Scope, req contracts.Requirement, asOf time.Time) (*contracts.MarketData, error) {
	key := redis.MarketWindowKey(string(layer), ScopeKey(layer, scope), req.String(), asOf)

	var cached contracts.MarketData
	found, err := p.cache.Get(ctx, key, &cached)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Market window cache read failed")
	} else if found {
		return &cached, nil
	}

	md, err := p.inner.FetchWindow(ctx, layer, scope, req, asOf)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, md, TTLFor(req)); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Market window cache write failed")
	}
	return md, nil
}

// ScopeKey identifies the asset set a window depends on.
// Macro and sector windows are shared by every context.
func ScopeKey(layer contracts.LayerID, scope *contracts.Scope) string {
	if scope == nil || (layer != contracts.LayerAsset && layer != contracts.LayerTiming) {
		return "all"
	}
	return fmt.Sprintf("%s@%d", scope.ContextID, scope.Version)
}

// TTLFor picks the cache TTL by bar size
func TTLFor(req contracts.Requirement) time.Duration {
	if req.Granularity >= 24*time.Hour {
		return redis.TTLDaily
	}
	return redis.TTLIntraday
}
