package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// Load reads a YAML policy file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Parse decodes and validates a YAML policy
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	if cfg.Orchestrator.UnknownPolicy == "" {
		cfg.Orchestrator.UnknownPolicy = UnknownContinue
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Default returns the built-in policy (same values as config/policy/cryptopredict_v1.yaml)
func Default() *Config {
	return &Config{
		Meta: Meta{PolicyID: "cryptopredict_v1", Version: "1.0.0"},
		Orchestrator: Orchestrator{
			UnknownPolicy: UnknownContinue,
			LayerTimeout:  10 * time.Second,
		},
		Macro: Macro{
			Window:        Window{Lookback: 30 * 24 * time.Hour, Granularity: 24 * time.Hour, MinPoints: 30},
			VolatilityMax: 0.06,
			RegimeBand:    0.15,
			ReturnWeight:  0.6,
			MoodWeight:    0.4,
		},
		Sector: Sector{
			Window:          Window{Lookback: 14 * 24 * time.Hour, Granularity: 24 * time.Hour, MinPoints: 14},
			TopN:            3,
			MomentumWeight:  0.7,
			VolumeWeight:    0.3,
			VolatilityScale: 2.0,
		},
		Asset: Asset{
			Window:         Window{Lookback: 14 * 24 * time.Hour, Granularity: 24 * time.Hour, MinPoints: 14},
			TopN:           5,
			MomentumWeight: 0.6,
			VolumeWeight:   0.2,
			SectorBonus:    0.2,
			Steepness:      8,
		},
		Timing: Timing{
			Window:        Window{Lookback: 48 * time.Hour, Granularity: time.Hour, MinPoints: 48},
			MaxCalls:      3,
			FastEMA:       6,
			SlowEMA:       24,
			RSIPeriod:     14,
			RSIOverbought: 70,
			RSIOversold:   30,
		},
		Disagreement: Disagreement{Rules: DefaultRules()},
	}
}

// DefaultRules is the conservative compatibility table
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "bear_macro_vs_long_assets",
			Upstream:    contracts.LayerMacro,
			Stance:      string(contracts.RegimeBear),
			Downstream:  contracts.LayerAsset,
			Against:     StanceLong,
			MinCount:    2,
			MinStrength: 0.7,
		},
		{
			Name:       "bear_macro_vs_enter",
			Upstream:   contracts.LayerMacro,
			Stance:     string(contracts.RegimeBear),
			Downstream: contracts.LayerTiming,
			Against:    string(contracts.ActionEnter),
			MinCount:   1,
		},
		{
			Name:       "bull_macro_vs_exit",
			Upstream:   contracts.LayerMacro,
			Stance:     string(contracts.RegimeBull),
			Downstream: contracts.LayerTiming,
			Against:    string(contracts.ActionExit),
			MinCount:   2,
		},
	}
}
