package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/data/memory"
	"github.com/wonny/cryptopredict/pkg/logger"
)

var asOf = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func labels() [4]contracts.Label {
	return [4]contracts.Label{
		{Regime: contracts.RegimeBull},
		{Sectors: []contracts.RankedSector{{Sector: "DeFi", Score: 0.6, Rank: 1}, {Sector: "L1", Score: 0.2, Rank: 2}}},
		{Assets: []contracts.RankedAsset{{Symbol: "BTC", Score: 0.85, Rank: 1}, {Symbol: "ETH", Score: 0.7, Rank: 2}}},
		{Calls: []contracts.TimingCall{{Symbol: "BTC", Action: contracts.ActionEnter, Strength: 0.75}, {Symbol: "ETH", Action: contracts.ActionHold, Strength: 0.5}}},
	}
}

func newRun(t *testing.T, runID string, computedAt time.Time, ls [4]contracts.Label, confs [4]float64) *contracts.EvaluationRun {
	t.Helper()

	signals := make([]contracts.Signal, 0, 4)
	for i, layer := range contracts.AllLayers() {
		sig := contracts.Signal{
			Layer:      layer,
			Label:      ls[i],
			Confidence: confs[i],
			Factors:    []contracts.Factor{{Name: "momentum", Weight: 0.4, Direction: contracts.DirectionPositive}},
			ComputedAt: asOf,
		}
		if ls[i].Unknown {
			sig.Factors = []contracts.Factor{{Name: "degraded:insufficient_data", Direction: contracts.DirectionNeutral}}
		}
		if i > 0 {
			sig.UpstreamRefs = []string{signals[i-1].ID}
		}
		require.NoError(t, sig.Seal())
		signals = append(signals, sig)
	}

	return &contracts.EvaluationRun{
		RunID:               runID,
		Scope:               contracts.Scope{ContextID: "default", Name: "Top 10", Owner: contracts.SystemOwner(), Version: 3, Assets: []string{"BTC", "ETH"}, IsDefault: true},
		Signals:             signals,
		AggregateConfidence: 0.8,
		Disagreement:        contracts.DisagreementNone,
		AsOf:                asOf,
		StartedAt:           computedAt.Add(-time.Second),
		ComputedAt:          computedAt,
		Timings:             []contracts.LayerLatency{{Layer: contracts.LayerMacro, StartedAt: computedAt.Add(-time.Second), Duration: 120 * time.Millisecond}},
		PolicyHash:          "abc123",
	}
}

func TestProject_Guest(t *testing.T) {
	adapter := NewAdapter(nil, logger.Nop())
	run := newRun(t, "run_1", asOf, labels(), [4]float64{0.9, 0.8, 0.82, 0.75})

	p, err := adapter.Project(context.Background(), run, contracts.PersonaGuest)
	require.NoError(t, err)

	assert.Equal(t, contracts.PersonaGuest, p.Persona)
	require.Len(t, p.Layers, 4)
	assert.Equal(t, "bull", p.Layers[0].Label)
	assert.Equal(t, "The crypto market is in a bullish regime (high confidence).", p.Layers[0].Explanation)
	assert.Equal(t, "DeFi is leading the sector rotation, followed by L1 (high confidence).", p.Layers[1].Explanation)
	assert.Equal(t, "Strongest assets in this watchlist: BTC and ETH (high confidence).", p.Layers[2].Explanation)
	assert.Equal(t, "Timing: consider entering BTC; hold ETH (high confidence).", p.Layers[3].Explanation)

	assert.Nil(t, p.Delta)
	assert.Nil(t, p.Admin)
	assert.Empty(t, p.Layers[0].Factors)
	assert.Empty(t, p.Caution)
}

func TestProject_DegradedLayer(t *testing.T) {
	adapter := NewAdapter(nil, logger.Nop())
	ls := labels()
	ls[1] = contracts.UnknownLabel()
	run := newRun(t, "run_1", asOf, ls, [4]float64{0.9, 0, 0.82, 0.75})
	run.AggregateConfidence = 0
	run.Disagreement = contracts.DisagreementUndetermined

	for _, persona := range []contracts.Persona{contracts.PersonaGuest, contracts.PersonaUser} {
		p, err := adapter.Project(context.Background(), run, persona)
		require.NoError(t, err)
		assert.True(t, p.Layers[1].Degraded)
		assert.Equal(t, MsgInsufficientData, p.Layers[1].Explanation)
		assert.Equal(t, "unknown", p.Layers[1].Label)
	}

	admin, err := adapter.Project(context.Background(), run, contracts.PersonaAdmin)
	require.NoError(t, err)
	assert.Equal(t, "degraded:insufficient_data", admin.Layers[1].Explanation)
	assert.Equal(t, contracts.DisagreementUndetermined, admin.Admin.Disagreement)
}

func TestProject_UserDelta(t *testing.T) {
	ctx := context.Background()
	history := memory.NewRunStore()
	adapter := NewAdapter(history, logger.Nop())

	prevLabels := labels()
	prevLabels[0] = contracts.Label{Regime: contracts.RegimeNeutral}
	prev := newRun(t, "run_prev", asOf.Add(-time.Hour), prevLabels, [4]float64{0.6, 0.8, 0.82, 0.75})
	prev.AggregateConfidence = 0.7
	require.NoError(t, history.Append(ctx, prev))

	run := newRun(t, "run_now", asOf, labels(), [4]float64{0.9, 0.8, 0.82, 0.75})
	require.NoError(t, history.Append(ctx, run))

	p, err := adapter.Project(ctx, run, contracts.PersonaUser)
	require.NoError(t, err)
	require.NotNil(t, p.Delta)

	assert.Equal(t, "run_prev", p.Delta.PreviousRunID)
	assert.InDelta(t, 0.1, p.Delta.ConfidenceChange, 1e-9)
	require.Len(t, p.Delta.Changes, 4)
	macro := p.Delta.Changes[0]
	assert.Equal(t, contracts.LayerMacro, macro.Layer)
	assert.Equal(t, "neutral", macro.From)
	assert.Equal(t, "bull", macro.To)
	assert.True(t, macro.Changed)
	assert.InDelta(t, 0.3, macro.ConfidenceChange, 1e-9)
	assert.False(t, p.Delta.Changes[1].Changed)
	assert.Nil(t, p.Admin)

	// 첫 실행은 delta 없음
	first, err := adapter.Project(ctx, prev, contracts.PersonaUser)
	require.NoError(t, err)
	assert.Nil(t, first.Delta)
}

func TestProject_Admin(t *testing.T) {
	adapter := NewAdapter(memory.NewRunStore(), logger.Nop())
	run := newRun(t, "run_1", asOf, labels(), [4]float64{0.9, 0.8, 0.82, 0.75})
	run.Disagreement = contracts.DisagreementFlagged
	run.Conflicts = []contracts.Conflict{{Rule: "bear_macro_vs_long_assets", Symbols: []string{"BTC"}}}

	p, err := adapter.Project(context.Background(), run, contracts.PersonaAdmin)
	require.NoError(t, err)
	require.NotNil(t, p.Admin)

	assert.Equal(t, "abc123", p.Admin.PolicyHash)
	assert.Equal(t, int64(3), p.Admin.ScopeVersion)
	assert.Equal(t, contracts.DisagreementFlagged, p.Admin.Disagreement)
	assert.Len(t, p.Admin.Timings, 1)
	assert.Equal(t, MsgDisagreement, p.Caution)
	assert.Equal(t, run.Signals[2].ID, p.Layers[2].SignalID)
	assert.Equal(t, run.Signals[2].Factors, p.Layers[2].Factors)

	// 관리자 뷰를 수정해도 run 은 불변
	p.Layers[2].Factors[0].Weight = 99
	p.Layers[2].Detail.Assets[0].Symbol = "DOGE"
	p.Admin.Conflicts[0].Symbols[0] = "DOGE"
	assert.Equal(t, 0.4, run.Signals[2].Factors[0].Weight)
	assert.Equal(t, "BTC", run.Signals[2].Label.Assets[0].Symbol)
	assert.Equal(t, "BTC", run.Conflicts[0].Symbols[0])
}

func TestProject_ByteIdentical(t *testing.T) {
	ctx := context.Background()
	history := memory.NewRunStore()
	adapter := NewAdapter(history, logger.Nop())

	require.NoError(t, history.Append(ctx, newRun(t, "run_prev", asOf.Add(-time.Hour), labels(), [4]float64{0.5, 0.5, 0.5, 0.5})))
	run := newRun(t, "run_now", asOf, labels(), [4]float64{0.9, 0.8, 0.82, 0.75})

	for _, persona := range contracts.AllPersonas() {
		t.Run(string(persona), func(t *testing.T) {
			first, err := adapter.Project(ctx, run, persona)
			require.NoError(t, err)
			second, err := adapter.Project(ctx, run, persona)
			require.NoError(t, err)

			a, err := json.Marshal(first)
			require.NoError(t, err)
			b, err := json.Marshal(second)
			require.NoError(t, err)
			assert.Equal(t, string(a), string(b))
		})
	}
}

func TestProject_UnknownPersona(t *testing.T) {
	adapter := NewAdapter(nil, logger.Nop())
	_, err := adapter.Project(context.Background(), newRun(t, "run_1", asOf, labels(), [4]float64{1, 1, 1, 1}), "robot")
	assert.Error(t, err)
}

func TestProjectError(t *testing.T) {
	adapter := NewAdapter(nil, logger.Nop())
	dataErr := fmt.Errorf("L1 macro failed: %w", &contracts.DataSourceError{Layer: contracts.LayerMacro, Timeout: true, Err: context.DeadlineExceeded})

	tests := []struct {
		name    string
		persona contracts.Persona
		err     error
		code    string
		message string
		detail  bool
	}{
		{"guest data source", contracts.PersonaGuest, dataErr, "data_source_unavailable", MsgUnavailable, false},
		{"user data source", contracts.PersonaUser, dataErr, "data_source_unavailable", MsgUnavailable, false},
		{"admin data source", contracts.PersonaAdmin, dataErr, "data_source_unavailable", MsgUnavailable, true},
		{"user forbidden", contracts.PersonaUser, contracts.ErrForbiddenContext, "forbidden_context", MsgForbiddenContext, false},
		{"admin not found", contracts.PersonaAdmin, contracts.ErrContextNotFound, "context_not_found", MsgContextNotFound, true},
		{"guest unexpected", contracts.PersonaGuest, errors.New("boom"), "internal", MsgUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := adapter.ProjectError(tt.persona, tt.err)
			assert.Equal(t, tt.code, view.Code)
			assert.Equal(t, tt.message, view.Message)
			if tt.detail {
				assert.Equal(t, tt.err.Error(), view.Detail)
			} else {
				assert.Empty(t, view.Detail)
			}
		})
	}
}

func TestProperty_PersonaContentEquivalence(t *testing.T) {
	adapter := NewAdapter(memory.NewRunStore(), logger.Nop())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every persona sees the same labels and confidences", prop.ForAll(
		func(c1, c2, c3, c4 float64, unknownAt int) bool {
			ls := labels()
			confs := [4]float64{c1, c2, c3, c4}
			if unknownAt < 4 {
				ls[unknownAt] = contracts.UnknownLabel()
				confs[unknownAt] = 0
			}
			run := newRun(t, "run_prop", asOf, ls, confs)

			var views []*Projection
			for _, persona := range contracts.AllPersonas() {
				p, err := adapter.Project(context.Background(), run, persona)
				if err != nil {
					return false
				}
				views = append(views, p)
			}

			for _, p := range views[1:] {
				if p.AggregateConfidence != views[0].AggregateConfidence || len(p.Layers) != len(views[0].Layers) {
					return false
				}
				for i := range p.Layers {
					if p.Layers[i].Label != views[0].Layers[i].Label ||
						p.Layers[i].Confidence != views[0].Layers[i].Confidence ||
						p.Layers[i].Degraded != views[0].Layers[i].Degraded {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
