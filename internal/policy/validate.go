package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// StanceLong is the downstream stance of a strongly ranked asset
const StanceLong = "long"

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}

	// === Orchestrator ===
	switch cfg.Orchestrator.UnknownPolicy {
	case UnknownContinue, UnknownShortCircuit:
	default:
		return ValidationError{"orchestrator.unknown_policy", "must be continue or short_circuit"}
	}
	if cfg.Orchestrator.LayerTimeout <= 0 {
		return ValidationError{"orchestrator.layer_timeout", "must be > 0"}
	}

	// === Windows ===
	for _, layer := range contracts.AllLayers() {
		if err := validateWindow(cfg.Window(layer), string(layer)+".window"); err != nil {
			return err
		}
	}

	// === Macro ===
	if cfg.Macro.VolatilityMax <= 0 {
		return ValidationError{"macro.volatility_max", "must be > 0"}
	}
	if cfg.Macro.RegimeBand <= 0 || cfg.Macro.RegimeBand >= 1 {
		return ValidationError{"macro.regime_band", "must be in (0, 1)"}
	}
	if err := validateWeightsSum([]float64{cfg.Macro.ReturnWeight, cfg.Macro.MoodWeight}, 1.0, 1e-6); err != nil {
		return ValidationError{"macro", err.Error()}
	}

	// === Sector ===
	if cfg.Sector.TopN < 1 {
		return ValidationError{"sector.top_n", "must be >= 1"}
	}
	if err := validateWeightsSum([]float64{cfg.Sector.MomentumWeight, cfg.Sector.VolumeWeight}, 1.0, 1e-6); err != nil {
		return ValidationError{"sector", err.Error()}
	}
	if cfg.Sector.VolatilityScale < 0 {
		return ValidationError{"sector.volatility_scale", "must be >= 0"}
	}

	// === Asset ===
	if cfg.Asset.TopN < 1 {
		return ValidationError{"asset.top_n", "must be >= 1"}
	}
	if err := validateWeightsSum([]float64{cfg.Asset.MomentumWeight, cfg.Asset.VolumeWeight, cfg.Asset.SectorBonus}, 1.0, 1e-6); err != nil {
		return ValidationError{"asset", err.Error()}
	}
	if cfg.Asset.Steepness <= 0 {
		return ValidationError{"asset.steepness", "must be > 0"}
	}

	// === Timing ===
	t := cfg.Timing
	if t.MaxCalls < 1 {
		return ValidationError{"timing.max_calls", "must be >= 1"}
	}
	if t.FastEMA < 1 || t.FastEMA >= t.SlowEMA {
		return ValidationError{"timing", "must satisfy 1 <= fast_ema < slow_ema"}
	}
	if t.RSIPeriod < 2 {
		return ValidationError{"timing.rsi_period", "must be >= 2"}
	}
	if t.RSIOversold <= 0 || t.RSIOversold >= t.RSIOverbought || t.RSIOverbought >= 100 {
		return ValidationError{"timing", "must satisfy 0 < rsi_oversold < rsi_overbought < 100"}
	}
	// EMA/RSI는 window 안에서 계산 가능해야 함
	if t.SlowEMA > t.Window.MinPoints || t.RSIPeriod+1 > t.Window.MinPoints {
		return ValidationError{"timing.window.min_points", fmt.Sprintf("must cover slow_ema=%d and rsi_period=%d", t.SlowEMA, t.RSIPeriod)}
	}

	// === Disagreement ===
	seen := make(map[string]bool, len(cfg.Disagreement.Rules))
	for i, r := range cfg.Disagreement.Rules {
		field := fmt.Sprintf("disagreement.rules[%d]", i)
		if r.Name == "" {
			return ValidationError{field + ".name", "required"}
		}
		if seen[r.Name] {
			return ValidationError{field + ".name", fmt.Sprintf("duplicate rule %q", r.Name)}
		}
		seen[r.Name] = true

		if err := validateRule(r); err != nil {
			return ValidationError{field, err.Error()}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if len(cfg.Disagreement.Rules) == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_DISAGREEMENT_RULES",
			Message: "disagreement table is empty: layers are never flagged",
		})
	}

	if cfg.Orchestrator.UnknownPolicy == UnknownShortCircuit {
		warnings = append(warnings, Warning{
			Code:    "SHORT_CIRCUIT",
			Message: "an unknown signal at any layer hides every layer after it",
		})
	}

	// 규칙이 요구하는 개수보다 레이어 출력이 작으면 절대 발동하지 않음
	for _, r := range cfg.Disagreement.Rules {
		limit := 0
		switch r.Downstream {
		case contracts.LayerAsset:
			limit = cfg.Asset.TopN
		case contracts.LayerTiming:
			limit = cfg.Timing.MaxCalls
		}
		if r.MinCount > limit {
			warnings = append(warnings, Warning{
				Code:    "UNREACHABLE_RULE",
				Message: fmt.Sprintf("rule %s needs %d %s entries but the layer emits at most %d", r.Name, r.MinCount, r.Downstream, limit),
			})
		}
	}

	return warnings
}

// === Helper Functions ===

func validateWindow(w Window, field string) error {
	if w.Lookback <= 0 {
		return ValidationError{field + ".lookback", "must be > 0"}
	}
	if w.Granularity <= 0 || w.Granularity > w.Lookback {
		return ValidationError{field + ".granularity", "must be in (0, lookback]"}
	}
	if w.MinPoints < 2 {
		return ValidationError{field + ".min_points", "must be >= 2"}
	}
	return nil
}

func validateRule(r Rule) error {
	if r.Upstream.Index() == 0 || r.Downstream.Index() == 0 {
		return errors.New("upstream and downstream must be valid layers")
	}
	if r.Upstream.Index() >= r.Downstream.Index() {
		return errors.New("upstream must come before downstream")
	}
	if r.Upstream != contracts.LayerMacro {
		return errors.New("only macro stances can be contradicted")
	}

	switch contracts.Regime(r.Stance) {
	case contracts.RegimeBull, contracts.RegimeBear, contracts.RegimeNeutral, contracts.RegimeVolatile:
	default:
		return fmt.Errorf("unknown macro stance %q", r.Stance)
	}

	switch r.Downstream {
	case contracts.LayerAsset:
		if r.Against != StanceLong {
			return fmt.Errorf("asset stance must be %q", StanceLong)
		}
	case contracts.LayerTiming:
		switch contracts.Action(r.Against) {
		case contracts.ActionEnter, contracts.ActionExit, contracts.ActionHold:
		default:
			return fmt.Errorf("unknown timing stance %q", r.Against)
		}
	default:
		return fmt.Errorf("%s has no stance vocabulary", r.Downstream)
	}

	if r.MinCount < 1 {
		return errors.New("min_count must be >= 1")
	}
	if r.MinStrength < 0 || r.MinStrength >= 1 {
		return errors.New("min_strength must be in [0, 1)")
	}
	return nil
}

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return errors.New("weights must be >= 0")
		}
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("weights must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}
