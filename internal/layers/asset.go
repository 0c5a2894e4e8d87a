package layers

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// regimeDampening is subtracted from the raw asset score in bear/volatile regimes
const regimeDampening = 0.25

// NewAssetEvaluator creates the L3 asset selection evaluator
func NewAssetEvaluator(cfg policy.Asset, scorer contracts.ModelScorer, log *logger.Logger) *Evaluator {
	return newEvaluator(contracts.LayerAsset, cfg.Window.Requirement(), assetBuilder{}, scorer, log)
}

type assetBuilder struct{}

func (assetBuilder) build(md *contracts.MarketData, upstream *contracts.Signal, scope *contracts.Scope) (*contracts.ScoreRequest, error) {
	weights := sectorWeights(upstream)

	candidates := make([]contracts.Candidate, 0, len(scope.Assets))
	for _, symbol := range scope.Assets {
		s, ok := md.Get(symbol)
		if !ok {
			continue
		}
		candidates = append(candidates, contracts.Candidate{
			Key:   symbol,
			Group: s.Group,
			Features: []contracts.Feature{
				{Name: FeatureMomentum, Value: periodReturn(s.Closes(), 0)},
				{Name: FeatureVolumeGrowth, Value: volumeGrowth(s.Volumes())},
				{Name: FeatureSectorWeight, Value: weights[s.Group]},
			},
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	damp := 0.0
	if regime, ok := regimeOf(upstream); ok && (regime == contracts.RegimeBear || regime == contracts.RegimeVolatile) {
		damp = 1.0
	}

	req := &contracts.ScoreRequest{
		Layer:      contracts.LayerAsset,
		Features:   []contracts.Feature{{Name: FeatureRegimeDamp, Value: damp}},
		Candidates: candidates,
	}
	if !upstream.IsUnknown() {
		label := upstream.Label.Clone()
		req.Upstream = &label
	}
	return req, nil
}

// sectorWeights maps the ranked sectors to a membership weight: leader 1.0, then
// linearly down to 1/n for the last ranked sector. Unranked sectors weigh 0.
func sectorWeights(upstream *contracts.Signal) map[string]float64 {
	if upstream.IsUnknown() {
		return map[string]float64{}
	}

	n := len(upstream.Label.Sectors)
	out := make(map[string]float64, n)
	for i, s := range upstream.Label.Sectors {
		out[s.Sector] = float64(n-i) / float64(n)
	}
	return out
}

func (assetBuilder) accept(label contracts.Label, scope *contracts.Scope) (contracts.Label, error) {
	if label.Regime != "" || len(label.Sectors) > 0 || len(label.Calls) > 0 {
		return contracts.Label{}, errLabelShape
	}

	seen := make(map[string]bool, len(label.Assets))
	out := make([]contracts.RankedAsset, 0, len(label.Assets))
	for _, a := range label.Assets {
		if math.IsNaN(a.Score) || a.Score < 0 || a.Score > 1 {
			return contracts.Label{}, fmt.Errorf("%w: score %.4f for %s", errLabelShape, a.Score, a.Symbol)
		}
		// 스코프 밖 자산은 버림
		if !scope.Contains(a.Symbol) || seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		a.Rank = len(out) + 1
		out = append(out, a)
	}
	if len(out) == 0 {
		return contracts.UnknownLabel(), nil
	}
	return contracts.Label{Assets: out}, nil
}

// AssetModel is the built-in asset selector
// ⭐ SSOT: 자산 선별 점수는 여기서만
type AssetModel struct {
	cfg policy.Asset
}

// NewAssetModel creates the heuristic asset scorer
func NewAssetModel(cfg policy.Asset) *AssetModel {
	return &AssetModel{cfg: cfg}
}

// Score ranks the candidates by a logistic of momentum, volume growth and sector
// membership. Confidence blends the mean top score with sub-signal agreement.
func (m *AssetModel) Score(_ context.Context, req *contracts.ScoreRequest) (*contracts.Score, error) {
	damp, _ := contracts.FeatureValue(req.Features, FeatureRegimeDamp)

	type parts struct{ momentum, volume, sector float64 }
	byKey := make(map[string]parts, len(req.Candidates))
	items := make([]ranked, 0, len(req.Candidates))

	for _, c := range req.Candidates {
		momentum, _ := contracts.FeatureValue(c.Features, FeatureMomentum)
		growth, _ := contracts.FeatureValue(c.Features, FeatureVolumeGrowth)
		weight, _ := contracts.FeatureValue(c.Features, FeatureSectorWeight)

		p := parts{
			momentum: m.cfg.MomentumWeight * math.Tanh(5*momentum),
			volume:   m.cfg.VolumeWeight * math.Tanh(growth),
			sector:   m.cfg.SectorBonus * weight,
		}
		raw := p.momentum + p.volume + p.sector - regimeDampening*damp

		byKey[c.Key] = p
		items = append(items, ranked{key: c.Key, group: c.Group, score: logistic(raw, m.cfg.Steepness)})
	}

	if len(items) == 0 {
		return &contracts.Score{Label: contracts.UnknownLabel()}, nil
	}
	sortRanked(items)
	if len(items) > m.cfg.TopN {
		items = items[:m.cfg.TopN]
	}

	assets := make([]contracts.RankedAsset, len(items))
	scores := make([]float64, len(items))
	agreement := make([]float64, len(items))
	var sum parts
	for i, it := range items {
		assets[i] = contracts.RankedAsset{Symbol: it.key, Sector: it.group, Score: it.score, Rank: i + 1}
		scores[i] = it.score

		p := byKey[it.key]
		sum.momentum += p.momentum
		sum.volume += p.volume
		sum.sector += p.sector

		// 하위 신호가 같은 방향일수록 1
		total := math.Abs(p.momentum) + math.Abs(p.volume) + math.Abs(p.sector)
		if total > 0 {
			agreement[i] = math.Abs(p.momentum+p.volume+p.sector) / total
		}
	}

	n := float64(len(items))
	factors := []contracts.Factor{
		{Name: FeatureMomentum, Weight: sum.momentum / n, Direction: contracts.DirectionOf(sum.momentum)},
		{Name: FeatureVolumeGrowth, Weight: sum.volume / n, Direction: contracts.DirectionOf(sum.volume)},
		{Name: "sector_membership", Weight: sum.sector / n, Direction: contracts.DirectionOf(sum.sector)},
	}
	if damp > 0 {
		factors = append(factors, contracts.Factor{Name: FeatureRegimeDamp, Weight: -regimeDampening, Direction: contracts.DirectionNegative})
	}

	return &contracts.Score{
		Label:      contracts.Label{Assets: assets},
		Confidence: clamp01(0.5*mean(scores) + 0.5*mean(agreement)),
		Factors:    factors,
	}, nil
}
