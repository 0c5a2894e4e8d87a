package contracts

import (
	"fmt"
	"time"
)

// DisagreementState is the outcome of the layer compatibility check
type DisagreementState string

const (
	DisagreementNone    DisagreementState = "none"
	DisagreementFlagged DisagreementState = "flagged"
	// DisagreementUndetermined is used when any layer is unknown
	DisagreementUndetermined DisagreementState = "undetermined"
)

// Flagged reports whether layers disagree
func (d DisagreementState) Flagged() bool {
	return d == DisagreementFlagged
}

// Conflict is one hit of the compatibility table
type Conflict struct {
	Rule       string   `json:"rule"`
	Upstream   LayerID  `json:"upstream"`
	Downstream LayerID  `json:"downstream"`
	Stance     string   `json:"stance"`  // upstream stance, e.g. "bear"
	Against    string   `json:"against"` // downstream stance, e.g. "long"
	Count      int      `json:"count"`
	Symbols    []string `json:"symbols,omitempty"`
}

// LayerLatency records operational latency of a layer (admin only)
type LayerLatency struct {
	Layer     LayerID       `json:"layer"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Degraded  bool          `json:"degraded"`
}

// EvaluationRun is one end-to-end execution of the four-layer chain
// ⭐ SSOT: Run은 완료 후 불변, 다음 Run으로 대체(append-only)
type EvaluationRun struct {
	RunID               string            `json:"run_id"`
	Scope               Scope             `json:"scope"`
	Signals             []Signal          `json:"signals"`
	AggregateConfidence float64           `json:"aggregate_confidence"`
	Disagreement        DisagreementState `json:"disagreement"`
	Conflicts           []Conflict        `json:"conflicts,omitempty"`
	AsOf                time.Time         `json:"as_of"`
	StartedAt           time.Time         `json:"started_at"`
	ComputedAt          time.Time         `json:"computed_at"`
	Timings             []LayerLatency    `json:"timings"`
	PolicyHash          string            `json:"policy_hash,omitempty"`
}

// Signal returns the signal of a layer
func (r *EvaluationRun) Signal(layer LayerID) (*Signal, bool) {
	for i := range r.Signals {
		if r.Signals[i].Layer == layer {
			return &r.Signals[i], true
		}
	}
	return nil, false
}

// Degraded reports whether any layer returned unknown
func (r *EvaluationRun) Degraded() bool {
	for i := range r.Signals {
		if r.Signals[i].Label.Unknown {
			return true
		}
	}
	return false
}

// Validate checks the chain invariants: four signals in order, each referencing
// exactly its upstream signal.
func (r *EvaluationRun) Validate() error {
	layers := AllLayers()
	if len(r.Signals) != len(layers) {
		return fmt.Errorf("run %s: expected %d signals, got %d", r.RunID, len(layers), len(r.Signals))
	}

	for i, layer := range layers {
		sig := r.Signals[i]
		if sig.Layer != layer {
			return fmt.Errorf("run %s: signal %d is %s, want %s", r.RunID, i, sig.Layer, layer)
		}
		if sig.Confidence < 0 || sig.Confidence > 1 {
			return fmt.Errorf("run %s: %s confidence %.4f out of [0,1]", r.RunID, layer, sig.Confidence)
		}
		if i == 0 {
			if len(sig.UpstreamRefs) != 0 {
				return fmt.Errorf("run %s: macro signal must not have upstream refs", r.RunID)
			}
			continue
		}
		prev := r.Signals[i-1]
		if len(sig.UpstreamRefs) != 1 || sig.UpstreamRefs[0] != prev.ID {
			return fmt.Errorf("run %s: %s must reference %s", r.RunID, layer, prev.ID)
		}
	}

	return nil
}

// Clone returns a deep copy so stored runs can never be mutated by readers
func (r *EvaluationRun) Clone() *EvaluationRun {
	if r == nil {
		return nil
	}
	out := *r
	out.Scope = r.Scope.Clone()
	out.Signals = cloneSlice(r.Signals)
	for i := range out.Signals {
		out.Signals[i] = r.Signals[i].Clone()
	}
	out.Conflicts = cloneSlice(r.Conflicts)
	for i := range out.Conflicts {
		out.Conflicts[i].Symbols = cloneSlice(r.Conflicts[i].Symbols)
	}
	out.Timings = cloneSlice(r.Timings)
	return &out
}

// RunSummary is a lightweight listing row
type RunSummary struct {
	RunID               string             `json:"run_id"`
	ContextID           string             `json:"context_id"`
	AggregateConfidence float64            `json:"aggregate_confidence"`
	Disagreement        DisagreementState  `json:"disagreement"`
	Labels              map[LayerID]string `json:"labels"`
	AsOf                time.Time          `json:"as_of"`
	ComputedAt          time.Time          `json:"computed_at"`
}

// Summary builds a listing row
func (r *EvaluationRun) Summary() RunSummary {
	labels := make(map[LayerID]string, len(r.Signals))
	for _, s := range r.Signals {
		labels[s.Layer] = s.Label.String()
	}
	return RunSummary{
		RunID:               r.RunID,
		ContextID:           r.Scope.ContextID,
		AggregateConfidence: r.AggregateConfidence,
		Disagreement:        r.Disagreement,
		Labels:              labels,
		AsOf:                r.AsOf,
		ComputedAt:          r.ComputedAt,
	}
}
