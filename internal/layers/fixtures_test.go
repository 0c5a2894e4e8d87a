package layers

import (
	"context"
	"math"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

var testAsOf = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

const (
	day  = 24 * time.Hour
	hour = time.Hour
)

func geometric(start, growth float64, n int) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		v *= growth
	}
	return out
}

func zigzag(start, amp float64, n int) []float64 {
	out := make([]float64, n)
	v := start
	for i := range out {
		out[i] = v
		if i%2 == 0 {
			v *= 1 + amp
		} else {
			v *= 1 - amp
		}
	}
	return out
}

// series spaces closes by step so the last point lands on testAsOf
func series(key, group string, step time.Duration, closes []float64, sentiment float64) contracts.Series {
	points := make([]contracts.Point, len(closes))
	for i, c := range closes {
		points[i] = contracts.Point{
			Time:      testAsOf.Add(-time.Duration(len(closes)-1-i) * step),
			Close:     c,
			Volume:    1000,
			Sentiment: sentiment,
		}
	}
	return contracts.Series{Key: key, Group: group, Points: points}
}

func marketData(layer contracts.LayerID, step time.Duration, s ...contracts.Series) *contracts.MarketData {
	return &contracts.MarketData{Layer: layer, AsOf: testAsOf, Granularity: step, Series: s}
}

func macroData(growth, sentiment float64) *contracts.MarketData {
	return marketData(contracts.LayerMacro, day, series(contracts.SeriesMarket, "", day, geometric(100, growth, 31), sentiment))
}

func sectorData() *contracts.MarketData {
	return marketData(contracts.LayerSector, day,
		series("DeFi", "", day, geometric(100, 1.02, 15), 0),
		series("L1", "", day, geometric(100, 1.0, 15), 0),
		series("Meme", "", day, geometric(100, 0.98, 15), 0),
	)
}

func assetData() *contracts.MarketData {
	return marketData(contracts.LayerAsset, day,
		series("BTC", "L1", day, geometric(100, 1.01, 15), 0),
		series("ETH", "L1", day, geometric(100, 1.005, 15), 0),
		series("SOL", "L1", day, geometric(100, 0.995, 15), 0),
		series("UNI", "DeFi", day, geometric(100, 1.015, 15), 0),
		series("AAVE", "DeFi", day, geometric(100, 1.0, 15), 0),
		series("DOGE", "Meme", day, geometric(100, 1.05, 15), 0),
	)
}

func timingData() *contracts.MarketData {
	return marketData(contracts.LayerTiming, hour,
		series("BTC", "L1", hour, zigzag(100, 0.01, 49), 0),
		series("ETH", "L1", hour, geometric(100, 1.002, 49), 0),
		series("SOL", "L1", hour, geometric(100, 0.998, 49), 0),
		series("UNI", "DeFi", hour, geometric(100, 1.001, 49), 0),
		series("AAVE", "DeFi", hour, geometric(100, 1.0, 49), 0),
		series("DOGE", "Meme", hour, geometric(100, 1.003, 49), 0),
	)
}

func testScope(assets ...string) *contracts.Scope {
	return &contracts.Scope{ContextID: "default", Name: "Default", Owner: contracts.SystemOwner(), Version: 1, Assets: assets, IsDefault: true}
}

func sealed(layer contracts.LayerID, label contracts.Label, confidence float64, upstream *contracts.Signal, factors ...contracts.Factor) *contracts.Signal {
	sig := &contracts.Signal{Layer: layer, Label: label, Confidence: confidence, Factors: factors, ComputedAt: testAsOf}
	if upstream != nil {
		sig.UpstreamRefs = []string{upstream.ID}
	}
	if err := sig.Seal(); err != nil {
		panic(err)
	}
	return sig
}

// stubScorer returns a fixed score or error
type stubScorer struct {
	score *contracts.Score
	err   error
}

func (s stubScorer) Score(ctx context.Context, _ *contracts.ScoreRequest) (*contracts.Score, error) {
	if s.err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s.err
	}
	return s.score, nil
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
