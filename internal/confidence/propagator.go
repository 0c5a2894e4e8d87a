package confidence

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/policy"
)

// Result is the outcome of propagating confidence through a chain
type Result struct {
	Aggregate    float64                     `json:"aggregate"`
	Disagreement contracts.DisagreementState `json:"disagreement"`
	Conflicts    []contracts.Conflict        `json:"conflicts,omitempty"`
}

// Propagator combines the four layer signals of a run.
// It holds only the immutable rule table and is safe for concurrent use.
type Propagator struct {
	rules []policy.Rule
}

// NewPropagator creates a propagator for a compatibility table
func NewPropagator(rules []policy.Rule) *Propagator {
	copied := make([]policy.Rule, len(rules))
	copy(copied, rules)
	return &Propagator{rules: copied}
}

// Propagate computes aggregate confidence and disagreement.
// signals must be the four layer signals in chain order.
func (p *Propagator) Propagate(signals []contracts.Signal) (Result, error) {
	if err := checkChain(signals); err != nil {
		return Result{}, err
	}

	// unknown이 하나라도 있으면 0, disagreement는 평가하지 않음
	for _, s := range signals {
		if s.IsUnknown() {
			return Result{Aggregate: 0, Disagreement: contracts.DisagreementUndetermined}, nil
		}
	}

	agg, err := GeometricMean(confidences(signals))
	if err != nil {
		return Result{}, err
	}

	conflicts := p.Check(signals)
	state := contracts.DisagreementNone
	if len(conflicts) > 0 {
		state = contracts.DisagreementFlagged
	}

	return Result{Aggregate: agg, Disagreement: state, Conflicts: conflicts}, nil
}

// Check evaluates the compatibility table against a complete chain
func (p *Propagator) Check(signals []contracts.Signal) []contracts.Conflict {
	byLayer := make(map[contracts.LayerID]*contracts.Signal, len(signals))
	for i := range signals {
		byLayer[signals[i].Layer] = &signals[i]
	}

	var conflicts []contracts.Conflict
	for _, rule := range p.rules {
		up, down := byLayer[rule.Upstream], byLayer[rule.Downstream]
		if up == nil || down == nil {
			continue
		}
		if upstreamStance(up) != rule.Stance {
			continue
		}

		symbols := downstreamMatches(down, rule)
		if len(symbols) < rule.MinCount {
			continue
		}

		conflicts = append(conflicts, contracts.Conflict{
			Rule:       rule.Name,
			Upstream:   rule.Upstream,
			Downstream: rule.Downstream,
			Stance:     rule.Stance,
			Against:    rule.Against,
			Count:      len(symbols),
			Symbols:    symbols,
		})
	}
	return conflicts
}

// GeometricMean returns the geometric mean of confidences in [0,1].
// Any zero confidence yields exactly 0.
func GeometricMean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("geometric mean of empty input")
	}
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return 0, fmt.Errorf("confidence %v out of [0,1]", v)
		}
		// stats.GeometricMean은 0을 곱셈 시작값으로 재사용하므로 직접 처리
		if v == 0 {
			return 0, nil
		}
	}

	gm, err := stats.GeometricMean(values)
	if err != nil {
		return 0, err
	}
	return clamp01(gm), nil
}

func confidences(signals []contracts.Signal) []float64 {
	out := make([]float64, len(signals))
	for i, s := range signals {
		out[i] = s.Confidence
	}
	return out
}

func checkChain(signals []contracts.Signal) error {
	layers := contracts.AllLayers()
	if len(signals) != len(layers) {
		return fmt.Errorf("propagate: expected %d signals, got %d", len(layers), len(signals))
	}
	for i, layer := range layers {
		if signals[i].Layer != layer {
			return fmt.Errorf("propagate: signal %d is %s, want %s", i, signals[i].Layer, layer)
		}
	}
	return nil
}

func upstreamStance(s *contracts.Signal) string {
	if s.Layer == contracts.LayerMacro {
		return string(s.Label.Regime)
	}
	return ""
}

// downstreamMatches returns the symbols of the downstream label taking the rule's stance
func downstreamMatches(s *contracts.Signal, rule policy.Rule) []string {
	var symbols []string
	switch s.Layer {
	case contracts.LayerAsset:
		if rule.Against != policy.StanceLong {
			return nil
		}
		for _, a := range s.Label.Assets {
			if a.Score > rule.MinStrength {
				symbols = append(symbols, a.Symbol)
			}
		}
	case contracts.LayerTiming:
		for _, c := range s.Label.Calls {
			if string(c.Action) == rule.Against && c.Strength > rule.MinStrength {
				symbols = append(symbols, c.Symbol)
			}
		}
	}
	return symbols
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
