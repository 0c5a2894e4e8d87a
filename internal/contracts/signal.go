package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Regime is the macro layer outcome
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeBear     Regime = "bear"
	RegimeNeutral  Regime = "neutral"
	RegimeVolatile Regime = "volatile"
)

// Action is the timing layer outcome per asset
type Action string

const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
	ActionHold  Action = "hold"
)

// Direction tells which way a factor pushed the label
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// DirectionOf returns the direction of a signed contribution
func DirectionOf(v float64) Direction {
	switch {
	case v > 0:
		return DirectionPositive
	case v < 0:
		return DirectionNegative
	default:
		return DirectionNeutral
	}
}

// Factor explains a label ("why")
type Factor struct {
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	Direction Direction `json:"direction"`
}

// RankedSector is one entry of the sector layer label
type RankedSector struct {
	Sector string  `json:"sector"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// RankedAsset is one entry of the asset layer label
type RankedAsset struct {
	Symbol string  `json:"symbol"`
	Sector string  `json:"sector,omitempty"`
	Score  float64 `json:"score"` // 0.0 ~ 1.0
	Rank   int     `json:"rank"`
}

// TimingCall is one entry of the timing layer label
type TimingCall struct {
	Symbol   string  `json:"symbol"`
	Action   Action  `json:"action"`
	Strength float64 `json:"strength"` // 0.0 ~ 1.0
}

// Label is the layer-specific categorical outcome.
// Exactly one of Regime/Sectors/Assets/Calls is populated, according to the layer,
// unless Unknown is set.
type Label struct {
	Unknown bool           `json:"unknown,omitempty"`
	Regime  Regime         `json:"regime,omitempty"`
	Sectors []RankedSector `json:"sectors,omitempty"`
	Assets  []RankedAsset  `json:"assets,omitempty"`
	Calls   []TimingCall   `json:"calls,omitempty"`
}

// UnknownLabel returns the degraded label
func UnknownLabel() Label {
	return Label{Unknown: true}
}

// LeadingSector returns the top ranked sector, if any
func (l Label) LeadingSector() (string, bool) {
	if len(l.Sectors) == 0 {
		return "", false
	}
	return l.Sectors[0].Sector, true
}

// String renders a compact, human readable label
// Examples: "bull", "DeFi-leading", "BTC:0.85,ETH:0.70", "enter(BTC)"
func (l Label) String() string {
	switch {
	case l.Unknown:
		return "unknown"
	case l.Regime != "":
		return string(l.Regime)
	case len(l.Sectors) > 0:
		return l.Sectors[0].Sector + "-leading"
	case len(l.Assets) > 0:
		parts := make([]string, 0, len(l.Assets))
		for _, a := range l.Assets {
			parts = append(parts, fmt.Sprintf("%s:%.2f", a.Symbol, a.Score))
		}
		return strings.Join(parts, ",")
	case len(l.Calls) > 0:
		parts := make([]string, 0, len(l.Calls))
		for _, c := range l.Calls {
			parts = append(parts, fmt.Sprintf("%s(%s)", c.Action, c.Symbol))
		}
		return strings.Join(parts, ",")
	default:
		return "none"
	}
}

// Clone returns a deep copy of the label
func (l Label) Clone() Label {
	return Label{
		Unknown: l.Unknown,
		Regime:  l.Regime,
		Sectors: cloneSlice(l.Sectors),
		Assets:  cloneSlice(l.Assets),
		Calls:   cloneSlice(l.Calls),
	}
}

// Signal is the primitive every layer produces
// ⭐ SSOT: 레이어 간 전달되는 유일한 값 타입
type Signal struct {
	ID           string    `json:"id"`
	Layer        LayerID   `json:"layer"`
	Label        Label     `json:"label"`
	Confidence   float64   `json:"confidence"` // 0.0 ~ 1.0
	Factors      []Factor  `json:"factors"`
	ComputedAt   time.Time `json:"computed_at"`
	UpstreamRefs []string  `json:"upstream_refs"`
}

// IsUnknown reports whether the layer degraded
func (s *Signal) IsUnknown() bool {
	return s == nil || s.Label.Unknown
}

// Seal assigns the content-addressed ID.
// The ID is the SHA-256 of the canonical JSON of the signal without its ID, so identical
// inputs always yield identical IDs and downstream refs.
func (s *Signal) Seal() error {
	s.ID = ""
	if s.Factors == nil {
		s.Factors = []Factor{}
	}
	if s.UpstreamRefs == nil {
		s.UpstreamRefs = []string{}
	}
	s.ComputedAt = s.ComputedAt.UTC()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	sum := sha256.Sum256(data)
	s.ID = fmt.Sprintf("sig_%s_%s", s.Layer, hex.EncodeToString(sum[:8]))
	return nil
}

// Clone returns a deep copy of the signal
func (s Signal) Clone() Signal {
	out := s
	out.Label = s.Label.Clone()
	out.Factors = cloneSlice(s.Factors)
	out.UpstreamRefs = cloneSlice(s.UpstreamRefs)
	return out
}

// NewUnknownSignal builds a degraded signal for a layer.
// reason is recorded as a factor so admins can see why the layer degraded.
func NewUnknownSignal(layer LayerID, asOf time.Time, upstream *Signal, reason string) (*Signal, error) {
	sig := &Signal{
		Layer:      layer,
		Label:      UnknownLabel(),
		Confidence: 0,
		Factors: []Factor{
			{Name: "degraded:" + reason, Weight: 0, Direction: DirectionNeutral},
		},
		ComputedAt: asOf,
	}
	if upstream != nil {
		sig.UpstreamRefs = []string{upstream.ID}
	}
	if err := sig.Seal(); err != nil {
		return nil, err
	}
	return sig, nil
}

// cloneSlice copies a slice keeping nil and empty distinct
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
