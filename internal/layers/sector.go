package layers

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// bullMomentumBoost scales momentum when the macro regime is bull
const bullMomentumBoost = 1.25

// NewSectorEvaluator creates the L2 sector rotation evaluator
func NewSectorEvaluator(cfg policy.Sector, scorer contracts.ModelScorer, log *logger.Logger) *Evaluator {
	return newEvaluator(contracts.LayerSector, cfg.Window.Requirement(), sectorBuilder{}, scorer, log)
}

type sectorBuilder struct{}

func (sectorBuilder) build(md *contracts.MarketData, upstream *contracts.Signal, _ *contracts.Scope) (*contracts.ScoreRequest, error) {
	candidates := make([]contracts.Candidate, 0, len(md.Series))
	for _, s := range md.Series {
		closes := s.Closes()
		candidates = append(candidates, contracts.Candidate{
			Key: s.Key,
			Features: []contracts.Feature{
				{Name: FeatureMomentum, Value: periodReturn(closes, 0)},
				{Name: FeatureVolumeTrend, Value: volumeTrend(s.Volumes())},
				{Name: FeatureVolatility, Value: volatility(closes)},
			},
		})
	}

	req := &contracts.ScoreRequest{
		Layer:      contracts.LayerSector,
		Candidates: candidates,
	}
	if !upstream.IsUnknown() {
		label := upstream.Label.Clone()
		req.Upstream = &label
	}
	return req, nil
}

func (sectorBuilder) accept(label contracts.Label, _ *contracts.Scope) (contracts.Label, error) {
	if label.Regime != "" || len(label.Assets) > 0 || len(label.Calls) > 0 {
		return contracts.Label{}, errLabelShape
	}
	if len(label.Sectors) == 0 {
		return contracts.UnknownLabel(), nil
	}

	seen := make(map[string]bool, len(label.Sectors))
	out := make([]contracts.RankedSector, 0, len(label.Sectors))
	for _, s := range label.Sectors {
		if s.Sector == "" || seen[s.Sector] {
			return contracts.Label{}, fmt.Errorf("%w: duplicate or empty sector %q", errLabelShape, s.Sector)
		}
		seen[s.Sector] = true
		s.Rank = len(out) + 1
		out = append(out, s)
	}
	return contracts.Label{Sectors: out}, nil
}

// SectorModel is the built-in sector rotation ranker
// ⭐ SSOT: 섹터 순위 산출은 여기서만
type SectorModel struct {
	cfg policy.Sector
}

// NewSectorModel creates the heuristic sector scorer
func NewSectorModel(cfg policy.Sector) *SectorModel {
	return &SectorModel{cfg: cfg}
}

// Score ranks sectors conditioned on the macro regime.
// An unknown regime is treated as neutral. Confidence is the separation of the leader
// from the rest of the field.
func (m *SectorModel) Score(_ context.Context, req *contracts.ScoreRequest) (*contracts.Score, error) {
	regime := contracts.RegimeNeutral
	if req.Upstream != nil && !req.Upstream.Unknown && req.Upstream.Regime != "" {
		regime = req.Upstream.Regime
	}

	type parts struct{ momentum, volume, penalty float64 }
	byKey := make(map[string]parts, len(req.Candidates))
	items := make([]ranked, 0, len(req.Candidates))

	for _, c := range req.Candidates {
		momentum, _ := contracts.FeatureValue(c.Features, FeatureMomentum)
		trend, _ := contracts.FeatureValue(c.Features, FeatureVolumeTrend)
		vol, _ := contracts.FeatureValue(c.Features, FeatureVolatility)

		p := parts{
			momentum: m.cfg.MomentumWeight * math.Tanh(5*momentum),
			volume:   m.cfg.VolumeWeight * math.Tanh(10*trend),
		}
		switch regime {
		case contracts.RegimeBull:
			p.momentum *= bullMomentumBoost
		case contracts.RegimeBear, contracts.RegimeVolatile:
			p.penalty = m.cfg.VolatilityScale * vol
		}

		byKey[c.Key] = p
		items = append(items, ranked{key: c.Key, score: p.momentum + p.volume - p.penalty})
	}

	if len(items) == 0 {
		return &contracts.Score{Label: contracts.UnknownLabel()}, nil
	}
	sortRanked(items)

	top := items
	if len(top) > m.cfg.TopN {
		top = top[:m.cfg.TopN]
	}
	sectors := make([]contracts.RankedSector, len(top))
	for i, it := range top {
		sectors[i] = contracts.RankedSector{Sector: it.key, Score: it.score, Rank: i + 1}
	}

	confidence := 0.5
	if len(items) > 1 {
		rest := make([]float64, 0, len(items)-1)
		for _, it := range items[1:] {
			rest = append(rest, it.score)
		}
		gap := items[0].score - mean(rest)
		confidence = 0.5 + 0.5*clamp01(gap/0.5)
	}

	leader := byKey[items[0].key]
	regimeDirection := contracts.DirectionNeutral
	switch regime {
	case contracts.RegimeBull:
		regimeDirection = contracts.DirectionPositive
	case contracts.RegimeBear, contracts.RegimeVolatile:
		regimeDirection = contracts.DirectionNegative
	}

	factors := []contracts.Factor{
		{Name: regimeFactorPrefix + string(regime), Weight: 0, Direction: regimeDirection},
		{Name: FeatureMomentum, Weight: leader.momentum, Direction: contracts.DirectionOf(leader.momentum)},
		{Name: FeatureVolumeTrend, Weight: leader.volume, Direction: contracts.DirectionOf(leader.volume)},
	}
	if leader.penalty > 0 {
		factors = append(factors, contracts.Factor{Name: FeatureVolatility, Weight: -leader.penalty, Direction: contracts.DirectionNegative})
	}

	return &contracts.Score{
		Label:      contracts.Label{Sectors: sectors},
		Confidence: confidence,
		Factors:    factors,
	}, nil
}
