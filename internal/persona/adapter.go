package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// projector renders a run for one persona. prior is nil when there is no earlier run.
type projector func(run, prior *contracts.EvaluationRun) *Projection

// Adapter re-renders the same run per persona
// ⭐ SSOT: persona 분기는 여기서만 (계산 로직에는 persona 없음)
type Adapter struct {
	history    contracts.RunReader
	projectors map[contracts.Persona]projector
	logger     *logger.Logger
}

// NewAdapter creates a persona adapter. history may be nil (no deltas).
func NewAdapter(history contracts.RunReader, log *logger.Logger) *Adapter {
	return &Adapter{
		history: history,
		projectors: map[contracts.Persona]projector{
			contracts.PersonaGuest: projectGuest,
			contracts.PersonaUser:  projectUser,
			contracts.PersonaAdmin: projectAdmin,
		},
		logger: log.Component("persona"),
	}
}

// Project renders a completed run for a persona.
// The same run and persona always produce the same projection.
func (a *Adapter) Project(ctx context.Context, run *contracts.EvaluationRun, persona contracts.Persona) (*Projection, error) {
	if run == nil {
		return nil, errors.New("nil run")
	}
	project, ok := a.projectors[persona]
	if !ok {
		return nil, fmt.Errorf("unknown persona %q", persona)
	}

	var prior *contracts.EvaluationRun
	if persona != contracts.PersonaGuest && a.history != nil {
		prev, err := a.history.LatestBefore(ctx, run.Scope.ContextID, run.Scope.Owner, run.ComputedAt, run.RunID)
		switch {
		case err == nil:
			prior = prev
		case errors.Is(err, contracts.ErrRunNotFound):
		default:
			a.logger.WithError(err).WithField("run_id", run.RunID).Warn("Prior run lookup failed, delta omitted")
		}
	}

	return project(run, prior), nil
}

// ProjectError renders a failure. Guests and users never see internal detail.
func (a *Adapter) ProjectError(persona contracts.Persona, err error) *ErrorView {
	view := &ErrorView{Persona: persona}

	switch {
	case errors.Is(err, contracts.ErrContextNotFound):
		view.Code = "context_not_found"
		view.Message = MsgContextNotFound
	case errors.Is(err, contracts.ErrForbiddenContext):
		view.Code = "forbidden_context"
		view.Message = MsgForbiddenContext
	case errors.Is(err, contracts.ErrRunNotFound):
		view.Code = "run_not_found"
		view.Message = MsgUnavailable
	case errors.Is(err, contracts.ErrDataSourceUnavailable):
		view.Code = "data_source_unavailable"
		view.Message = MsgUnavailable
	case errors.Is(err, contracts.ErrRunCancelled), errors.Is(err, context.Canceled):
		view.Code = "run_cancelled"
		view.Message = MsgUnavailable
	default:
		view.Code = "internal"
		view.Message = MsgUnavailable
	}

	if persona == contracts.PersonaAdmin && err != nil {
		view.Detail = err.Error()
	}
	return view
}

// === Projectors ===

func projectGuest(run, _ *contracts.EvaluationRun) *Projection {
	p := &Projection{
		Persona: contracts.PersonaGuest,
		RunID:   run.RunID,
		Context: ContextView{
			ID:        run.Scope.ContextID,
			Name:      run.Scope.Name,
			IsDefault: run.Scope.IsDefault,
		},
		AsOf:                run.AsOf,
		Layers:              make([]LayerView, 0, len(run.Signals)),
		AggregateConfidence: run.AggregateConfidence,
	}
	if run.Disagreement.Flagged() {
		p.Caution = MsgDisagreement
	}

	for i := range run.Signals {
		sig := &run.Signals[i]
		view := LayerView{
			Layer:       sig.Layer,
			Label:       sig.Label.String(),
			Confidence:  sig.Confidence,
			Explanation: explain(sig),
		}
		if sig.IsUnknown() {
			view.Degraded = true
			view.Explanation = MsgInsufficientData
		}
		p.Layers = append(p.Layers, view)
	}
	return p
}

func projectUser(run, prior *contracts.EvaluationRun) *Projection {
	p := projectGuest(run, nil)
	p.Persona = contracts.PersonaUser
	p.Delta = delta(run, prior)
	return p
}

func projectAdmin(run, prior *contracts.EvaluationRun) *Projection {
	own := run.Clone()

	p := projectUser(own, prior)
	p.Persona = contracts.PersonaAdmin

	for i := range own.Signals {
		sig := &own.Signals[i]
		view := &p.Layers[i]
		view.SignalID = sig.ID
		view.Detail = &sig.Label
		view.Factors = sig.Factors
		view.UpstreamRefs = sig.UpstreamRefs
		if sig.IsUnknown() && len(sig.Factors) > 0 {
			view.Explanation = sig.Factors[0].Name
		}
	}

	conflicts := own.Conflicts
	if conflicts == nil {
		conflicts = []contracts.Conflict{}
	}
	p.Admin = &AdminDetail{
		Owner:        own.Scope.Owner,
		ScopeVersion: own.Scope.Version,
		Assets:       own.Scope.Assets,
		Disagreement: own.Disagreement,
		Conflicts:    conflicts,
		Timings:      own.Timings,
		PolicyHash:   own.PolicyHash,
		StartedAt:    own.StartedAt,
		ComputedAt:   own.ComputedAt,
	}
	return p
}

func delta(run, prior *contracts.EvaluationRun) *Delta {
	if prior == nil {
		return nil
	}

	d := &Delta{
		PreviousRunID:    prior.RunID,
		PreviousAsOf:     prior.AsOf,
		ConfidenceChange: run.AggregateConfidence - prior.AggregateConfidence,
		Changes:          make([]LayerChange, 0, len(run.Signals)),
	}
	for i := range run.Signals {
		cur := &run.Signals[i]
		change := LayerChange{Layer: cur.Layer, To: cur.Label.String()}
		if prev, ok := prior.Signal(cur.Layer); ok {
			change.From = prev.Label.String()
			change.ConfidenceChange = cur.Confidence - prev.Confidence
		}
		change.Changed = change.From != change.To
		d.Changes = append(d.Changes, change)
	}
	return d
}

// === Plain-language explanations ===

func explain(sig *contracts.Signal) string {
	level := confidenceWord(sig.Confidence)

	switch sig.Layer {
	case contracts.LayerMacro:
		return fmt.Sprintf("%s (%s confidence).", regimeSentence(sig.Label.Regime), level)

	case contracts.LayerSector:
		names := make([]string, 0, len(sig.Label.Sectors))
		for _, s := range sig.Label.Sectors {
			names = append(names, s.Sector)
		}
		if len(names) == 0 {
			return MsgInsufficientData
		}
		if len(names) == 1 {
			return fmt.Sprintf("%s is leading the sector rotation (%s confidence).", names[0], level)
		}
		return fmt.Sprintf("%s is leading the sector rotation, followed by %s (%s confidence).", names[0], joinList(names[1:]), level)

	case contracts.LayerAsset:
		symbols := make([]string, 0, len(sig.Label.Assets))
		for _, a := range sig.Label.Assets {
			symbols = append(symbols, a.Symbol)
		}
		if len(symbols) == 0 {
			return MsgInsufficientData
		}
		return fmt.Sprintf("Strongest assets in this watchlist: %s (%s confidence).", joinList(symbols), level)

	case contracts.LayerTiming:
		byAction := map[contracts.Action][]string{}
		for _, c := range sig.Label.Calls {
			byAction[c.Action] = append(byAction[c.Action], c.Symbol)
		}
		parts := make([]string, 0, 3)
		for _, action := range []contracts.Action{contracts.ActionEnter, contracts.ActionExit, contracts.ActionHold} {
			if symbols := byAction[action]; len(symbols) > 0 {
				parts = append(parts, fmt.Sprintf("%s %s", actionVerb(action), joinList(symbols)))
			}
		}
		if len(parts) == 0 {
			return MsgInsufficientData
		}
		return fmt.Sprintf("Timing: %s (%s confidence).", strings.Join(parts, "; "), level)
	}

	return MsgInsufficientData
}

func regimeSentence(r contracts.Regime) string {
	switch r {
	case contracts.RegimeBull:
		return "The crypto market is in a bullish regime"
	case contracts.RegimeBear:
		return "The crypto market is in a bearish regime"
	case contracts.RegimeVolatile:
		return "The crypto market is unusually volatile"
	default:
		return "The crypto market is moving sideways"
	}
}

func actionVerb(a contracts.Action) string {
	switch a {
	case contracts.ActionEnter:
		return "consider entering"
	case contracts.ActionExit:
		return "consider exiting"
	default:
		return "hold"
	}
}

func confidenceWord(c float64) string {
	switch {
	case c >= 0.75:
		return "high"
	case c >= 0.5:
		return "moderate"
	default:
		return "low"
	}
}

// joinList renders "a", "a and b", "a, b and c"
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
