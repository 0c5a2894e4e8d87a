package contracts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func chainedSignals(t *testing.T) []Signal {
	t.Helper()

	labels := []Label{
		{Regime: RegimeBull},
		{Sectors: []RankedSector{{Sector: "DeFi", Score: 0.6, Rank: 1}}},
		{Assets: []RankedAsset{{Symbol: "BTC", Score: 0.85, Rank: 1}}},
		{Calls: []TimingCall{{Symbol: "BTC", Action: ActionEnter, Strength: 0.75}}},
	}

	out := make([]Signal, 0, 4)
	var prev *Signal
	for i, layer := range AllLayers() {
		sig := &Signal{Layer: layer, Label: labels[i], Confidence: 0.8, ComputedAt: testAsOf}
		if prev != nil {
			sig.UpstreamRefs = []string{prev.ID}
		}
		if err := sig.Seal(); err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		out = append(out, *sig)
		prev = sig
	}
	return out
}

func TestEvaluationRun_Validate(t *testing.T) {
	run := &EvaluationRun{RunID: "run_1", Signals: chainedSignals(t)}
	if err := run.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	broken := run.Clone()
	broken.Signals[2].UpstreamRefs = []string{broken.Signals[0].ID}
	if err := broken.Validate(); err == nil {
		t.Errorf("asset referencing macro should fail validation")
	}

	short := run.Clone()
	short.Signals = short.Signals[:3]
	if err := short.Validate(); err == nil {
		t.Errorf("three signals should fail validation")
	}

	swapped := run.Clone()
	swapped.Signals[0], swapped.Signals[1] = swapped.Signals[1], swapped.Signals[0]
	if err := swapped.Validate(); err == nil {
		t.Errorf("out of order signals should fail validation")
	}
}

func TestEvaluationRun_CloneIsolation(t *testing.T) {
	run := &EvaluationRun{
		RunID:     "run_1",
		Scope:     Scope{ContextID: "default", Assets: []string{"BTC", "ETH"}},
		Signals:   chainedSignals(t),
		Conflicts: []Conflict{{Rule: "r", Symbols: []string{"BTC"}}},
		Timings:   []LayerLatency{{Layer: LayerTiming, Duration: time.Second}},
	}

	c := run.Clone()
	c.Scope.Assets[0] = "DOGE"
	c.Signals[0].Confidence = 0
	c.Signals[2].Label.Assets[0].Symbol = "XRP"
	c.Conflicts[0].Symbols[0] = "SOL"
	c.Timings[0].Degraded = true

	if run.Scope.Assets[0] != "BTC" || run.Signals[0].Confidence != 0.8 ||
		run.Signals[2].Label.Assets[0].Symbol != "BTC" || run.Conflicts[0].Symbols[0] != "BTC" {
		t.Errorf("Clone() leaked a mutation into the original run")
	}
	if run.Timings[0].Degraded || run.Timings[0].Layer != LayerTiming {
		t.Errorf("Clone() shares the timings slice")
	}
}

func TestEvaluationRun_Summary(t *testing.T) {
	run := &EvaluationRun{RunID: "run_1", Scope: Scope{ContextID: "default"}, Signals: chainedSignals(t)}

	s := run.Summary()
	if s.Labels[LayerMacro] != "bull" || s.Labels[LayerTiming] != "enter(BTC)" {
		t.Errorf("Summary labels = %v", s.Labels)
	}
	if run.Degraded() {
		t.Errorf("run without unknown layers is not degraded")
	}
}

func TestErrors_Classification(t *testing.T) {
	timeout := NewDataSourceError(LayerSector, fmt.Errorf("fetch: %w", context.DeadlineExceeded))
	if !timeout.Timeout || !errors.Is(timeout, ErrDataSourceUnavailable) {
		t.Errorf("deadline should be a data source timeout: %+v", timeout)
	}

	wrapped := fmt.Errorf("L2 sector failed: %w", timeout)
	if !IsFatal(wrapped) {
		t.Errorf("data source errors are fatal")
	}
	if again := NewDataSourceError(LayerAsset, wrapped); again != timeout {
		t.Errorf("NewDataSourceError should not re-wrap")
	}

	insufficient := &InsufficientDataError{Layer: LayerTiming, Detail: "no series returned"}
	if IsFatal(insufficient) {
		t.Errorf("insufficient data degrades, it is not fatal")
	}
	if !errors.Is(fmt.Errorf("x: %w", insufficient), ErrInsufficientData) {
		t.Errorf("wrapped InsufficientDataError should match ErrInsufficientData")
	}
}

func TestViewer_Validate(t *testing.T) {
	tests := []struct {
		name    string
		viewer  Viewer
		wantErr bool
	}{
		{"guest", Guest(), false},
		{"user with id", Viewer{Persona: PersonaUser, UserID: "u1"}, false},
		{"user without id", Viewer{Persona: PersonaUser}, true},
		{"admin without id", Viewer{Persona: PersonaAdmin}, true},
		{"bogus persona", Viewer{Persona: "root", UserID: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.viewer.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if p, err := ParsePersona(""); err != nil || p != PersonaGuest {
		t.Errorf("empty persona should parse as guest")
	}
	if !UserOwner("u1").OwnedBy("u1") || SystemOwner().OwnedBy("") {
		t.Errorf("OwnedBy mismatch")
	}
}
