package layers

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// holdDeadband is the |EMA spread| below which no crossover is called
const holdDeadband = 0.002

// NewTimingEvaluator creates the L4 entry/exit evaluator
func NewTimingEvaluator(cfg policy.Timing, scorer contracts.ModelScorer, log *logger.Logger) *Evaluator {
	return newEvaluator(contracts.LayerTiming, cfg.Window.Requirement(), timingBuilder{cfg: cfg}, scorer, log)
}

type timingBuilder struct {
	cfg policy.Timing
}

// symbols picks the upstream top assets that are in scope, or the scope order when
// the asset layer is unknown.
func (b timingBuilder) symbols(upstream *contracts.Signal, scope *contracts.Scope) []string {
	var ordered []string
	if upstream.IsUnknown() {
		ordered = scope.Assets
	} else {
		for _, a := range upstream.Label.Assets {
			if scope.Contains(a.Symbol) {
				ordered = append(ordered, a.Symbol)
			}
		}
	}
	return ordered
}

func (b timingBuilder) build(md *contracts.MarketData, upstream *contracts.Signal, scope *contracts.Scope) (*contracts.ScoreRequest, error) {
	candidates := make([]contracts.Candidate, 0, b.cfg.MaxCalls)
	for _, symbol := range b.symbols(upstream, scope) {
		if len(candidates) == b.cfg.MaxCalls {
			break
		}
		s, ok := md.Get(symbol)
		if !ok {
			continue
		}

		closes := s.Closes()
		slow := emaLast(closes, b.cfg.SlowEMA)
		spread := 0.0
		if slow != 0 {
			spread = (emaLast(closes, b.cfg.FastEMA) - slow) / slow
		}

		candidates = append(candidates, contracts.Candidate{
			Key:   symbol,
			Group: s.Group,
			Features: []contracts.Feature{
				{Name: FeatureEMASpread, Value: spread},
				{Name: FeatureRSI, Value: rsi(closes, b.cfg.RSIPeriod)},
			},
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	req := &contracts.ScoreRequest{
		Layer:      contracts.LayerTiming,
		Candidates: candidates,
	}
	if !upstream.IsUnknown() {
		label := upstream.Label.Clone()
		req.Upstream = &label
	}
	return req, nil
}

func (b timingBuilder) accept(label contracts.Label, scope *contracts.Scope) (contracts.Label, error) {
	if label.Regime != "" || len(label.Sectors) > 0 || len(label.Assets) > 0 {
		return contracts.Label{}, errLabelShape
	}

	seen := make(map[string]bool, len(label.Calls))
	out := make([]contracts.TimingCall, 0, len(label.Calls))
	for _, c := range label.Calls {
		switch c.Action {
		case contracts.ActionEnter, contracts.ActionExit, contracts.ActionHold:
		default:
			return contracts.Label{}, fmt.Errorf("%w: action %q", errLabelShape, c.Action)
		}
		if math.IsNaN(c.Strength) || c.Strength < 0 || c.Strength > 1 {
			return contracts.Label{}, fmt.Errorf("%w: strength %.4f for %s", errLabelShape, c.Strength, c.Symbol)
		}
		if !scope.Contains(c.Symbol) || seen[c.Symbol] {
			continue
		}
		seen[c.Symbol] = true
		out = append(out, c)
		if len(out) == b.cfg.MaxCalls {
			break
		}
	}
	if len(out) == 0 {
		return contracts.UnknownLabel(), nil
	}
	return contracts.Label{Calls: out}, nil
}

// TimingModel is the built-in EMA crossover / RSI timing model
// ⭐ SSOT: 진입/청산 판단은 여기서만
type TimingModel struct {
	cfg policy.Timing
}

// NewTimingModel creates the heuristic timing scorer
func NewTimingModel(cfg policy.Timing) *TimingModel {
	return &TimingModel{cfg: cfg}
}

// Score calls enter/exit/hold per candidate. Confidence is the mean call strength.
func (m *TimingModel) Score(_ context.Context, req *contracts.ScoreRequest) (*contracts.Score, error) {
	if len(req.Candidates) == 0 {
		return &contracts.Score{Label: contracts.UnknownLabel()}, nil
	}

	calls := make([]contracts.TimingCall, 0, len(req.Candidates))
	strengths := make([]float64, 0, len(req.Candidates))
	var spreadSum, rsiSum float64

	for _, c := range req.Candidates {
		spread, _ := contracts.FeatureValue(c.Features, FeatureEMASpread)
		r, ok := contracts.FeatureValue(c.Features, FeatureRSI)
		if !ok {
			r = 50.0
		}
		spreadSum += spread
		rsiSum += r

		call := m.call(c.Key, spread, r)
		calls = append(calls, call)
		strengths = append(strengths, call.Strength)
	}

	n := float64(len(req.Candidates))
	avgRSI := rsiSum / n
	factors := []contracts.Factor{
		{Name: FeatureEMASpread, Weight: spreadSum / n, Direction: contracts.DirectionOf(spreadSum)},
		{Name: FeatureRSI, Weight: avgRSI, Direction: contracts.DirectionOf(avgRSI - 50)},
	}

	return &contracts.Score{
		Label:      contracts.Label{Calls: calls},
		Confidence: clamp01(mean(strengths)),
		Factors:    factors,
	}, nil
}

func (m *TimingModel) call(symbol string, spread, r float64) contracts.TimingCall {
	call := contracts.TimingCall{Symbol: symbol}

	switch {
	case r >= m.cfg.RSIOverbought:
		// 과매수: 크로스오버와 무관하게 청산
		call.Action = contracts.ActionExit
		call.Strength = 0.5 + 0.5*clamp01((r-m.cfg.RSIOverbought)/(100-m.cfg.RSIOverbought))
	case math.Abs(spread) < holdDeadband:
		call.Action = contracts.ActionHold
		call.Strength = 1 - math.Abs(spread)/holdDeadband
	case spread < 0 && r <= m.cfg.RSIOversold:
		// 과매도 구간에서는 청산 대신 관망
		call.Action = contracts.ActionHold
		call.Strength = clamp01((m.cfg.RSIOversold - r) / m.cfg.RSIOversold)
	case spread > 0:
		call.Action = contracts.ActionEnter
		call.Strength = math.Tanh(spread * 100)
	default:
		call.Action = contracts.ActionExit
		call.Strength = math.Tanh(-spread * 100)
	}

	call.Strength = clamp01(call.Strength)
	return call
}
