package persona

import (
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// Messages shown to guests and users
const (
	MsgInsufficientData = "insufficient data for a full signal right now"
	MsgUnavailable      = "analysis temporarily unavailable"
	MsgDisagreement     = "the layers disagree, treat this analysis with caution"
	MsgContextNotFound  = "watchlist not found"
	MsgForbiddenContext = "you do not have access to this watchlist"
)

// Projection is the per-persona view of one run. Never persisted.
// ⭐ SSOT: 화면에 나가는 유일한 분석 응답 타입
type Projection struct {
	Persona             contracts.Persona `json:"persona"`
	RunID               string            `json:"run_id"`
	Context             ContextView       `json:"context"`
	AsOf                time.Time         `json:"as_of"`
	Layers              []LayerView       `json:"layers"`
	AggregateConfidence float64           `json:"aggregate_confidence"`
	Caution             string            `json:"caution,omitempty"`
	Delta               *Delta            `json:"delta,omitempty"`
	Admin               *AdminDetail      `json:"admin,omitempty"`
}

// ContextView names the analyzed watchlist
type ContextView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// LayerView is one layer as the viewer sees it
type LayerView struct {
	Layer       contracts.LayerID `json:"layer"`
	Label       string            `json:"label"`
	Confidence  float64           `json:"confidence"`
	Explanation string            `json:"explanation"`
	Degraded    bool              `json:"degraded,omitempty"`

	// admin only
	SignalID     string             `json:"signal_id,omitempty"`
	Detail       *contracts.Label   `json:"detail,omitempty"`
	Factors      []contracts.Factor `json:"factors,omitempty"`
	UpstreamRefs []string           `json:"upstream_refs,omitempty"`
}

// Delta compares a run with the previous run of the same context and owner
type Delta struct {
	PreviousRunID    string        `json:"previous_run_id"`
	PreviousAsOf     time.Time     `json:"previous_as_of"`
	ConfidenceChange float64       `json:"confidence_change"`
	Changes          []LayerChange `json:"changes"`
}

// LayerChange is the movement of one layer between two runs
type LayerChange struct {
	Layer            contracts.LayerID `json:"layer"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	Changed          bool              `json:"changed"`
	ConfidenceChange float64           `json:"confidence_change"`
}

// AdminDetail carries the operational fields hidden from other personas
type AdminDetail struct {
	Owner        contracts.Owner             `json:"owner"`
	ScopeVersion int64                       `json:"scope_version"`
	Assets       []string                    `json:"assets"`
	Disagreement contracts.DisagreementState `json:"disagreement"`
	Conflicts    []contracts.Conflict        `json:"conflicts"`
	Timings      []contracts.LayerLatency    `json:"timings"`
	PolicyHash   string                      `json:"policy_hash"`
	StartedAt    time.Time                   `json:"started_at"`
	ComputedAt   time.Time                   `json:"computed_at"`
}

// ErrorView is the per-persona rendering of a failed request
type ErrorView struct {
	Persona contracts.Persona `json:"persona"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Detail  string            `json:"detail,omitempty"` // admin only
}
