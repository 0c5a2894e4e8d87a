package policy

import (
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// UnknownPolicy decides what happens after a layer degrades to unknown
type UnknownPolicy string

const (
	// UnknownContinue keeps evaluating later layers "blind"
	UnknownContinue UnknownPolicy = "continue"
	// UnknownShortCircuit marks every later layer unknown without evaluating it
	UnknownShortCircuit UnknownPolicy = "short_circuit"
)

// Config is the full analytical policy of the layer chain
type Config struct {
	Meta         Meta         `yaml:"meta" json:"meta"`
	Orchestrator Orchestrator `yaml:"orchestrator" json:"orchestrator"`
	Macro        Macro        `yaml:"macro" json:"macro"`
	Sector       Sector       `yaml:"sector" json:"sector"`
	Asset        Asset        `yaml:"asset" json:"asset"`
	Timing       Timing       `yaml:"timing" json:"timing"`
	Disagreement Disagreement `yaml:"disagreement" json:"disagreement"`
}

// Meta 메타 정보
type Meta struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Version  string `yaml:"version" json:"version"`
}

type Orchestrator struct {
	UnknownPolicy UnknownPolicy `yaml:"unknown_policy" json:"unknown_policy"`
	LayerTimeout  time.Duration `yaml:"layer_timeout" json:"layer_timeout"` // fetch + evaluate
}

// Window is the data requirement of one layer
type Window struct {
	Lookback    time.Duration `yaml:"lookback" json:"lookback"`
	Granularity time.Duration `yaml:"granularity" json:"granularity"`
	MinPoints   int           `yaml:"min_points" json:"min_points"`
}

// Requirement converts the window into the provider contract
func (w Window) Requirement() contracts.Requirement {
	return contracts.Requirement{
		Lookback:    w.Lookback,
		Granularity: w.Granularity,
		MinPoints:   w.MinPoints,
	}
}

// Macro L1: regime classification
type Macro struct {
	Window        Window  `yaml:"window" json:"window"`
	VolatilityMax float64 `yaml:"volatility_max" json:"volatility_max"` // daily stddev of returns
	RegimeBand    float64 `yaml:"regime_band" json:"regime_band"`       // |composite| above band → bull/bear
	ReturnWeight  float64 `yaml:"return_weight" json:"return_weight"`
	MoodWeight    float64 `yaml:"mood_weight" json:"mood_weight"` // 합 = 1.0
}

// Sector L2: rotation ranking
type Sector struct {
	Window          Window  `yaml:"window" json:"window"`
	TopN            int     `yaml:"top_n" json:"top_n"`
	MomentumWeight  float64 `yaml:"momentum_weight" json:"momentum_weight"`
	VolumeWeight    float64 `yaml:"volume_weight" json:"volume_weight"`
	VolatilityScale float64 `yaml:"volatility_scale" json:"volatility_scale"` // penalty in bear/volatile regimes
}

// Asset L3: selection within scope
type Asset struct {
	Window         Window  `yaml:"window" json:"window"`
	TopN           int     `yaml:"top_n" json:"top_n"`
	MomentumWeight float64 `yaml:"momentum_weight" json:"momentum_weight"`
	VolumeWeight   float64 `yaml:"volume_weight" json:"volume_weight"`
	SectorBonus    float64 `yaml:"sector_bonus" json:"sector_bonus"`
	Steepness      float64 `yaml:"steepness" json:"steepness"` // logistic slope
}

// Timing L4: entry/exit per selected asset
type Timing struct {
	Window        Window  `yaml:"window" json:"window"`
	MaxCalls      int     `yaml:"max_calls" json:"max_calls"`
	FastEMA       int     `yaml:"fast_ema" json:"fast_ema"`
	SlowEMA       int     `yaml:"slow_ema" json:"slow_ema"`
	RSIPeriod     int     `yaml:"rsi_period" json:"rsi_period"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
}

// Disagreement is the layer compatibility table
type Disagreement struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Rule flags an upstream stance contradicted by a downstream stance.
// Example: macro=bear vs asset=long (min_count 2, min_strength 0.7)
type Rule struct {
	Name        string            `yaml:"name" json:"name"`
	Upstream    contracts.LayerID `yaml:"upstream" json:"upstream"`
	Stance      string            `yaml:"stance" json:"stance"`
	Downstream  contracts.LayerID `yaml:"downstream" json:"downstream"`
	Against     string            `yaml:"against" json:"against"`
	MinCount    int               `yaml:"min_count" json:"min_count"`
	MinStrength float64           `yaml:"min_strength" json:"min_strength"` // strictly greater than
}

// Window returns the data window of a layer
func (c *Config) Window(layer contracts.LayerID) Window {
	switch layer {
	case contracts.LayerMacro:
		return c.Macro.Window
	case contracts.LayerSector:
		return c.Sector.Window
	case contracts.LayerAsset:
		return c.Asset.Window
	case contracts.LayerTiming:
		return c.Timing.Window
	default:
		return Window{}
	}
}
