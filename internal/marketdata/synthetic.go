package marketdata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// SyntheticProvider generates reproducible random-walk windows.
// The same (key, asOf, requirement) always yields the same series, which makes it
// usable for offline demos and tests.
type SyntheticProvider struct {
	catalog Catalog
	// Drift overrides the per-bar drift of a key (symbol, sector or "market")
	Drift map[string]float64
}

var _ contracts.MarketDataProvider = (*SyntheticProvider)(nil)

// NewSyntheticProvider creates a synthetic provider
func NewSyntheticProvider(catalog Catalog) *SyntheticProvider {
	return &SyntheticProvider{catalog: catalog, Drift: map[string]float64{}}
}

// FetchWindow builds the window a layer asked for
func (p *SyntheticProvider) FetchWindow(ctx context.Context, layer contracts.LayerID, scope *contracts.Scope, req contracts.Requirement, asOf time.Time) (*contracts.MarketData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Granularity <= 0 {
		return nil, fmt.Errorf("synthetic: granularity must be > 0")
	}

	bars := int(req.Lookback/req.Granularity) + 1
	if bars < req.MinPoints {
		bars = req.MinPoints
	}

	md := &contracts.MarketData{Layer: layer, AsOf: asOf.UTC(), Granularity: req.Granularity}

	switch layer {
	case contracts.LayerMacro:
		md.Series = append(md.Series, p.series(contracts.SeriesMarket, "", bars, req.Granularity, md.AsOf, true))
	case contracts.LayerSector:
		for _, sector := range p.catalog.Sectors() {
			md.Series = append(md.Series, p.series(sector, "", bars, req.Granularity, md.AsOf, false))
		}
	case contracts.LayerAsset, contracts.LayerTiming:
		for _, symbol := range scope.Assets {
			md.Series = append(md.Series, p.series(symbol, p.catalog.SectorOf(symbol), bars, req.Granularity, md.AsOf, false))
		}
	default:
		return nil, fmt.Errorf("synthetic: unknown layer %q", layer)
	}

	return md, nil
}

func (p *SyntheticProvider) series(key, group string, bars int, step time.Duration, asOf time.Time, withSentiment bool) contracts.Series {
	seed := seedFor(key, step, asOf)
	rng := rand.New(rand.NewSource(seed))

	drift, ok := p.Drift[key]
	if !ok {
		// -0.5% ~ +0.5% per bar
		drift = (float64(seed%1000)/1000.0 - 0.5) / 100.0
	}

	points := make([]contracts.Point, bars)
	price := 100.0
	volume := 1_000_000.0
	for i := range points {
		if i > 0 {
			price *= 1 + drift + rng.NormFloat64()*0.01
			volume *= 1 + rng.NormFloat64()*0.05
		}
		points[i] = contracts.Point{
			Time:   asOf.Add(-time.Duration(bars-1-i) * step),
			Close:  math.Max(price, 0.01),
			Volume: math.Max(volume, 1),
		}
		if withSentiment {
			points[i].Sentiment = math.Min(100, math.Max(1, 50+drift*5000+rng.NormFloat64()*5))
		}
	}

	return contracts.Series{Key: key, Group: group, Points: points}
}

func seedFor(key string, step time.Duration, asOf time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d", key, step, asOf.Unix())
	return int64(h.Sum64() & math.MaxInt64)
}
