package layers

import (
	"context"
	"math"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// recentBars is the short window of the macro layer (7 daily bars)
const recentBars = 7

// NewMacroEvaluator creates the L1 regime evaluator
func NewMacroEvaluator(cfg policy.Macro, scorer contracts.ModelScorer, log *logger.Logger) *Evaluator {
	return newEvaluator(contracts.LayerMacro, cfg.Window.Requirement(), macroBuilder{}, scorer, log)
}

type macroBuilder struct{}

func (macroBuilder) build(md *contracts.MarketData, _ *contracts.Signal, _ *contracts.Scope) (*contracts.ScoreRequest, error) {
	market, ok := md.Get(contracts.SeriesMarket)
	if !ok {
		return nil, &contracts.InsufficientDataError{
			Layer:  contracts.LayerMacro,
			Series: contracts.SeriesMarket,
			Detail: "market series missing",
		}
	}

	closes := market.Closes()
	sentiment := make([]float64, len(market.Points))
	for i, p := range market.Points {
		sentiment[i] = p.Sentiment
	}

	return &contracts.ScoreRequest{
		Layer: contracts.LayerMacro,
		Features: []contracts.Feature{
			{Name: FeatureReturn30d, Value: periodReturn(closes, 0)},
			{Name: FeatureReturn7d, Value: periodReturn(closes, recentBars)},
			{Name: FeatureVolatility, Value: volatility(closes)},
			{Name: FeatureSentiment, Value: meanSentiment(sentiment, recentBars)},
		},
	}, nil
}

func (macroBuilder) accept(label contracts.Label, _ *contracts.Scope) (contracts.Label, error) {
	switch label.Regime {
	case contracts.RegimeBull, contracts.RegimeBear, contracts.RegimeNeutral, contracts.RegimeVolatile:
	default:
		return contracts.Label{}, errLabelShape
	}
	if len(label.Sectors) > 0 || len(label.Assets) > 0 || len(label.Calls) > 0 {
		return contracts.Label{}, errLabelShape
	}
	return contracts.Label{Regime: label.Regime}, nil
}

// MacroModel is the built-in regime classifier
// ⭐ SSOT: 시장 국면 판정은 여기서만
type MacroModel struct {
	cfg policy.Macro
}

// NewMacroModel creates the heuristic macro scorer
func NewMacroModel(cfg policy.Macro) *MacroModel {
	return &MacroModel{cfg: cfg}
}

// Score classifies the regime.
// Confidence is the normalized distance of the composite from the nearest boundary.
func (m *MacroModel) Score(_ context.Context, req *contracts.ScoreRequest) (*contracts.Score, error) {
	r30, _ := contracts.FeatureValue(req.Features, FeatureReturn30d)
	vol, _ := contracts.FeatureValue(req.Features, FeatureVolatility)
	sentiment, ok := contracts.FeatureValue(req.Features, FeatureSentiment)
	if !ok {
		sentiment = neutralSentiment
	}

	returnPart := m.cfg.ReturnWeight * math.Tanh(8*r30)
	moodPart := m.cfg.MoodWeight * (sentiment - neutralSentiment) / neutralSentiment
	composite := returnPart + moodPart

	factors := []contracts.Factor{
		{Name: FeatureReturn30d, Weight: returnPart, Direction: contracts.DirectionOf(returnPart)},
		{Name: FeatureSentiment, Weight: moodPart, Direction: contracts.DirectionOf(moodPart)},
	}

	// 변동성 초과 시 방향과 무관하게 volatile
	if vol > m.cfg.VolatilityMax {
		excess := (vol - m.cfg.VolatilityMax) / m.cfg.VolatilityMax
		factors = append([]contracts.Factor{
			{Name: FeatureVolatility, Weight: vol, Direction: contracts.DirectionNegative},
		}, factors...)
		return &contracts.Score{
			Label:      contracts.Label{Regime: contracts.RegimeVolatile},
			Confidence: 0.5 + 0.5*clamp01(excess),
			Factors:    factors,
		}, nil
	}
	factors = append(factors, contracts.Factor{Name: FeatureVolatility, Weight: vol, Direction: contracts.DirectionNeutral})

	band := m.cfg.RegimeBand
	var regime contracts.Regime
	var distance float64
	switch {
	case composite > band:
		regime = contracts.RegimeBull
		distance = (composite - band) / (1 - band)
	case composite < -band:
		regime = contracts.RegimeBear
		distance = (-composite - band) / (1 - band)
	default:
		regime = contracts.RegimeNeutral
		distance = (band - math.Abs(composite)) / band
	}

	return &contracts.Score{
		Label:      contracts.Label{Regime: regime},
		Confidence: 0.5 + 0.5*clamp01(distance),
		Factors:    factors,
	}, nil
}
