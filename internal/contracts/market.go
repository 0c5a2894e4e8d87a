package contracts

import (
	"fmt"
	"time"
)

// Series keys used by the macro layer
const (
	SeriesMarket = "market" // total crypto market cap (close) + sentiment
)

// Point is one observation of a series
type Point struct {
	Time      time.Time `json:"time"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Sentiment float64   `json:"sentiment,omitempty"` // 0 ~ 100 (fear & greed)
}

// Series is an ordered (oldest first) time series.
// Key is the asset symbol, sector name or SeriesMarket; Group is the sector of an asset.
type Series struct {
	Key    string  `json:"key"`
	Group  string  `json:"group,omitempty"`
	Points []Point `json:"points"`
}

// Closes returns the close prices, oldest first
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Volumes returns the volumes, oldest first
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Volume
	}
	return out
}

// Span returns the time covered by the series up to asOf
func (s Series) Span(asOf time.Time) time.Duration {
	if len(s.Points) == 0 {
		return 0
	}
	return asOf.Sub(s.Points[0].Time)
}

// Requirement is the minimum data window a layer needs
type Requirement struct {
	Lookback    time.Duration `json:"lookback"`
	Granularity time.Duration `json:"granularity"`
	MinPoints   int           `json:"min_points"`
}

// String renders e.g. "720h0m0s@24h0m0s"
func (r Requirement) String() string {
	return fmt.Sprintf("%s@%s", r.Lookback, r.Granularity)
}

// MarketData is what the market data provider returns for one layer
// ⭐ SSOT: Market Data Provider → Layer Evaluator 데이터 전달
type MarketData struct {
	Layer       LayerID       `json:"layer"`
	AsOf        time.Time     `json:"as_of"`
	Granularity time.Duration `json:"granularity"`
	Series      []Series      `json:"series"`
}

// Get returns a series by key
func (m *MarketData) Get(key string) (Series, bool) {
	for _, s := range m.Series {
		if s.Key == key {
			return s, true
		}
	}
	return Series{}, false
}

// CheckCoverage verifies the data satisfies the requirement.
// Every returned series must cover the lookback window at the required granularity.
func (m *MarketData) CheckCoverage(layer LayerID, req Requirement) error {
	if m == nil || len(m.Series) == 0 {
		return &InsufficientDataError{Layer: layer, Required: req, Detail: "no series returned"}
	}

	if m.Granularity > req.Granularity {
		return &InsufficientDataError{
			Layer:    layer,
			Required: req,
			Detail:   fmt.Sprintf("granularity %s coarser than %s", m.Granularity, req.Granularity),
		}
	}

	// One bar of slack: the first point opens the window
	minSpan := req.Lookback - req.Granularity
	for _, s := range m.Series {
		if len(s.Points) < req.MinPoints {
			return &InsufficientDataError{
				Layer:    layer,
				Required: req,
				Series:   s.Key,
				Detail:   fmt.Sprintf("%d points, need %d", len(s.Points), req.MinPoints),
			}
		}
		if span := s.Span(m.AsOf); span < minSpan {
			return &InsufficientDataError{
				Layer:    layer,
				Required: req,
				Series:   s.Key,
				Detail:   fmt.Sprintf("covers %s, need %s", span, req.Lookback),
			}
		}
		if err := m.checkEdge(layer, req, s); err != nil {
			return err
		}
	}

	return nil
}

// checkEdge rejects points after as-of and a last point older than one bar
func (m *MarketData) checkEdge(layer LayerID, req Requirement, s Series) error {
	if len(s.Points) == 0 {
		return nil
	}

	for _, p := range s.Points {
		if p.Time.After(m.AsOf) {
			return &InsufficientDataError{
				Layer:    layer,
				Required: req,
				Series:   s.Key,
				Detail:   fmt.Sprintf("point at %s is after as-of %s", p.Time.UTC().Format(time.RFC3339), m.AsOf.UTC().Format(time.RFC3339)),
			}
		}
	}

	last := s.Points[len(s.Points)-1].Time
	if req.Granularity > 0 && m.AsOf.Sub(last) > req.Granularity {
		return &InsufficientDataError{
			Layer:    layer,
			Required: req,
			Series:   s.Key,
			Detail:   fmt.Sprintf("stale: last point %s behind as-of", m.AsOf.Sub(last)),
		}
	}
	return nil
}
