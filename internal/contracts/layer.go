package contracts

// Analysis layer 정의 (SSOT)
// 모든 로그, 시그널, DB row에서 이 상수를 사용해야 함
//
// 레이어 흐름:
//   L1 → L2 → L3 → L4
//   Macro  Sector  Asset  Timing

// LayerID identifies one of the four analytical layers
type LayerID string

const (
	// LayerMacro L1: market regime (bull/bear/neutral/volatile)
	// 위치: internal/layers/macro.go
	LayerMacro LayerID = "macro"

	// LayerSector L2: sector rotation ranking
	// 위치: internal/layers/sector.go
	LayerSector LayerID = "sector"

	// LayerAsset L3: asset selection within the resolved scope
	// 위치: internal/layers/asset.go
	LayerAsset LayerID = "asset"

	// LayerTiming L4: enter/exit/hold per selected asset
	// 위치: internal/layers/timing.go
	LayerTiming LayerID = "timing"
)

// AllLayers returns all layers in evaluation order
func AllLayers() []LayerID {
	return []LayerID{LayerMacro, LayerSector, LayerAsset, LayerTiming}
}

// String returns the layer name
func (l LayerID) String() string {
	return string(l)
}

// Index returns the 1-based position of the layer in the chain (0 if invalid)
func (l LayerID) Index() int {
	for i, layer := range AllLayers() {
		if layer == l {
			return i + 1
		}
	}
	return 0
}

// ShortName returns abbreviated layer name (e.g., "L1", "L2")
func (l LayerID) ShortName() string {
	switch l {
	case LayerMacro:
		return "L1"
	case LayerSector:
		return "L2"
	case LayerAsset:
		return "L3"
	case LayerTiming:
		return "L4"
	default:
		return "UNKNOWN"
	}
}

// Upstream returns the layer this layer is conditioned on.
// Macro has no upstream.
func (l LayerID) Upstream() (LayerID, bool) {
	idx := l.Index()
	if idx <= 1 {
		return "", false
	}
	return AllLayers()[idx-2], true
}

// IsValidLayer checks if a layer string is valid
func IsValidLayer(s string) bool {
	return LayerID(s).Index() > 0
}

// RunState is a state of the orchestrator state machine
type RunState string

const (
	StateResolving   RunState = "RESOLVING"
	StateL1Macro     RunState = "L1_MACRO"
	StateL2Sector    RunState = "L2_SECTOR"
	StateL3Asset     RunState = "L3_ASSET"
	StateL4Timing    RunState = "L4_TIMING"
	StatePropagating RunState = "PROPAGATING"
	StateComplete    RunState = "COMPLETE"
	StateFailed      RunState = "FAILED"
)

// StateForLayer maps a layer to its evaluation state
func StateForLayer(l LayerID) RunState {
	switch l {
	case LayerMacro:
		return StateL1Macro
	case LayerSector:
		return StateL2Sector
	case LayerAsset:
		return StateL3Asset
	case LayerTiming:
		return StateL4Timing
	default:
		return StateFailed
	}
}

// IsTerminal reports whether no further transition is possible
func (s RunState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}
