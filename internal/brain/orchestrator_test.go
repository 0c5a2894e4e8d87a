package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/data/memory"
	"github.com/wonny/cryptopredict/internal/layers"
	"github.com/wonny/cryptopredict/internal/marketdata"
	"github.com/wonny/cryptopredict/internal/persona"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/internal/scope"
	"github.com/wonny/cryptopredict/pkg/logger"
)

var testAsOf = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// scriptedProvider wraps the synthetic provider and lets a test intercept a layer
type scriptedProvider struct {
	inner contracts.MarketDataProvider
	hooks map[contracts.LayerID]func(ctx context.Context) error

	mu    sync.Mutex
	calls map[contracts.LayerID]int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		inner: marketdata.NewSyntheticProvider(marketdata.DefaultCatalog()),
		hooks: map[contracts.LayerID]func(ctx context.Context) error{},
		calls: map[contracts.LayerID]int{},
	}
}

func (p *scriptedProvider) FetchWindow(ctx context.Context, layer contracts.LayerID, sc *contracts.Scope, req contracts.Requirement, asOf time.Time) (*contracts.MarketData, error) {
	p.mu.Lock()
	p.calls[layer]++
	hook := p.hooks[layer]
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	return p.inner.FetchWindow(ctx, layer, sc, req, asOf)
}

func (p *scriptedProvider) callCount(layer contracts.LayerID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[layer]
}

type failingScorer struct{ err error }

func (s failingScorer) Score(context.Context, *contracts.ScoreRequest) (*contracts.Score, error) {
	return nil, s.err
}

type fakePublisher struct {
	err  error
	runs []*contracts.EvaluationRun
	ctxs []error
}

func (p *fakePublisher) PublishRun(ctx context.Context, run *contracts.EvaluationRun) error {
	p.runs = append(p.runs, run)
	p.ctxs = append(p.ctxs, ctx.Err())
	return p.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	layers   []contracts.LayerID
	degraded int
	outcomes []string
}

func (r *fakeRecorder) ObserveLayer(layer contracts.LayerID, _ time.Duration, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, layer)
	if degraded {
		r.degraded++
	}
}

func (r *fakeRecorder) ObserveRun(outcome string, _ float64, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type fixture struct {
	store    *memory.WatchlistStore
	history  *memory.RunStore
	provider *scriptedProvider
	orch     *Orchestrator

	mu     sync.Mutex
	states []contracts.RunState
}

// ctxHistory rejects writes on a done context, the way a database driver does
type ctxHistory struct {
	*memory.RunStore
}

func (h ctxHistory) Append(ctx context.Context, run *contracts.EvaluationRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.RunStore.Append(ctx, run)
}

type fixtureOptions struct {
	cfg       *policy.Config
	overrides map[contracts.LayerID]contracts.ModelScorer
	opts      []Option
	// ctxAware makes the history store honour context cancellation
	ctxAware bool
}

func newFixture(t *testing.T, fo fixtureOptions) *fixture {
	t.Helper()

	cfg := fo.cfg
	if cfg == nil {
		cfg = policy.Default()
	}

	f := &fixture{
		store: memory.NewWatchlistStore(&contracts.WatchlistContext{
			ID:     "default",
			Name:   "Top 10",
			Assets: []string{"BTC", "ETH", "SOL", "ADA", "AVAX", "BNB", "XRP", "LINK", "UNI", "AAVE"},
		}),
		history:  memory.NewRunStore(),
		provider: newScriptedProvider(),
	}

	ctx := context.Background()
	for _, user := range []string{"alice", "bob"} {
		_, err := f.store.UpdateContext(ctx, &contracts.WatchlistContext{
			ID:     user + "-ctx",
			Name:   user + "'s picks",
			Owner:  contracts.UserOwner(user),
			Assets: []string{"SOL", "UNI", "AAVE"},
		}, 0)
		require.NoError(t, err)
	}

	// 호출마다 1초씩 흐르는 시계
	clockMu := sync.Mutex{}
	now := testAsOf.Add(30 * time.Minute)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	seq := 0
	runIDs := func() string {
		clockMu.Lock()
		defer clockMu.Unlock()
		seq++
		return fmt.Sprintf("run_%03d", seq)
	}

	opts := append([]Option{
		WithClock(clock),
		WithRunIDs(runIDs),
		WithTransitionHook(func(_ string, _, to contracts.RunState) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.states = append(f.states, to)
		}),
	}, fo.opts...)

	var history contracts.RunHistoryStore = f.history
	if fo.ctxAware {
		history = ctxHistory{RunStore: f.history}
	}

	log := logger.Nop()
	orch, err := NewOrchestrator(Deps{
		Resolver:   scope.NewResolver(f.store, log),
		Provider:   f.provider,
		Evaluators: layers.NewChain(cfg, log, fo.overrides),
		History:    history,
		Adapter:    persona.NewAdapter(f.history, log),
		Policy:     cfg,
		PolicyHash: "testhash",
	}, log, opts...)
	require.NoError(t, err)
	f.orch = orch

	return f
}

func (f *fixture) transitions() []contracts.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contracts.RunState(nil), f.states...)
}

func (f *fixture) storedRuns(t *testing.T, contextID string) []*contracts.EvaluationRun {
	t.Helper()
	runs, err := f.history.List(context.Background(), contextID, 0)
	require.NoError(t, err)
	return runs
}

func TestNewOrchestrator_Validation(t *testing.T) {
	log := logger.Nop()
	cfg := policy.Default()
	store := memory.NewWatchlistStore(&contracts.WatchlistContext{ID: "default", Assets: []string{"BTC"}})
	history := memory.NewRunStore()

	valid := Deps{
		Resolver:   scope.NewResolver(store, log),
		Provider:   marketdata.NewSyntheticProvider(marketdata.DefaultCatalog()),
		Evaluators: layers.NewChain(cfg, log, nil),
		History:    history,
		Adapter:    persona.NewAdapter(history, log),
		Policy:     cfg,
	}

	_, err := NewOrchestrator(valid, log)
	require.NoError(t, err)

	missing := valid
	missing.Provider = nil
	_, err = NewOrchestrator(missing, log)
	assert.Error(t, err)

	short := valid
	short.Evaluators = valid.Evaluators[:3]
	_, err = NewOrchestrator(short, log)
	assert.Error(t, err)

	swapped := valid
	swapped.Evaluators = []contracts.LayerEvaluator{valid.Evaluators[1], valid.Evaluators[0], valid.Evaluators[2], valid.Evaluators[3]}
	_, err = NewOrchestrator(swapped, log)
	assert.Error(t, err)
}

func TestAnalyze_CompleteRun(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	run, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	require.NoError(t, run.Validate())
	assert.Equal(t, "run_001", run.RunID)
	assert.Equal(t, "default", run.Scope.ContextID)
	assert.True(t, run.Scope.IsDefault)
	assert.Equal(t, testAsOf, run.AsOf)
	assert.Equal(t, "testhash", run.PolicyHash)
	assert.True(t, run.ComputedAt.After(run.StartedAt))

	require.Len(t, run.Signals, 4)
	for i, layer := range contracts.AllLayers() {
		sig := run.Signals[i]
		assert.Equal(t, layer, sig.Layer)
		assert.Equal(t, testAsOf, sig.ComputedAt, "signal time is the data time")
		assert.Contains(t, sig.ID, "sig_"+string(layer)+"_")
	}

	require.Len(t, run.Timings, 4)
	assert.GreaterOrEqual(t, run.AggregateConfidence, 0.0)
	assert.LessOrEqual(t, run.AggregateConfidence, 1.0)

	assert.Equal(t, []contracts.RunState{
		contracts.StateResolving,
		contracts.StateL1Macro,
		contracts.StateL2Sector,
		contracts.StateL3Asset,
		contracts.StateL4Timing,
		contracts.StatePropagating,
		contracts.StateComplete,
	}, f.transitions())

	stored, err := f.history.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, stored)
}

func TestAnalyze_DeterministicAcrossRuns(t *testing.T) {
	a := newFixture(t, fixtureOptions{})
	b := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	first, err := a.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.NoError(t, err)
	second, err := a.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.NoError(t, err)
	other, err := b.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, first.Signals, other.Signals)
	assert.Equal(t, first.AggregateConfidence, other.AggregateConfidence)
	assert.Equal(t, first.Disagreement, other.Disagreement)

	// 다른 시점 → 다른 데이터
	later, err := a.orch.Analyze(ctx, contracts.Guest(), "", testAsOf.Add(24*time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, first.Signals[0].ID, later.Signals[0].ID)
}

func TestAnalyze_InsufficientDataDegradesLayer(t *testing.T) {
	rec := &fakeRecorder{}
	f := newFixture(t, fixtureOptions{opts: []Option{WithRecorder(rec)}})
	f.provider.hooks[contracts.LayerSector] = func(context.Context) error {
		return &contracts.InsufficientDataError{Layer: contracts.LayerSector, Detail: "exchange gap"}
	}

	run, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	sector := run.Signals[1]
	assert.True(t, sector.IsUnknown())
	assert.Equal(t, 0.0, sector.Confidence)
	assert.Equal(t, "degraded:"+layers.ReasonInsufficientData, sector.Factors[0].Name)
	assert.Equal(t, []string{run.Signals[0].ID}, sector.UpstreamRefs)

	// continue 정책: 이후 레이어는 계속 평가
	assert.Equal(t, 1, f.provider.callCount(contracts.LayerAsset))
	assert.Equal(t, 1, f.provider.callCount(contracts.LayerTiming))
	require.NoError(t, run.Validate())

	assert.Equal(t, 0.0, run.AggregateConfidence)
	assert.Equal(t, contracts.DisagreementUndetermined, run.Disagreement)
	assert.True(t, run.Timings[1].Degraded)
	assert.Len(t, f.storedRuns(t, "default"), 1, "degraded runs are still recorded")

	assert.Equal(t, contracts.AllLayers(), rec.layers)
	assert.GreaterOrEqual(t, rec.degraded, 1)
	assert.Equal(t, []string{OutcomeDegraded}, rec.outcomes)
}

func TestAnalyze_ShortCircuitPolicy(t *testing.T) {
	cfg := policy.Default()
	cfg.Orchestrator.UnknownPolicy = policy.UnknownShortCircuit

	f := newFixture(t, fixtureOptions{cfg: cfg})
	f.provider.hooks[contracts.LayerMacro] = func(context.Context) error {
		return &contracts.InsufficientDataError{Layer: contracts.LayerMacro, Detail: "no sentiment"}
	}

	run, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
	require.NoError(t, err)
	require.NoError(t, run.Validate())

	for _, sig := range run.Signals {
		assert.True(t, sig.IsUnknown(), "%s must be unknown", sig.Layer)
	}
	assert.Equal(t, "degraded:"+layers.ReasonUpstreamUnknown, run.Signals[3].Factors[0].Name)

	assert.Equal(t, 1, f.provider.callCount(contracts.LayerMacro))
	assert.Equal(t, 0, f.provider.callCount(contracts.LayerSector))
	assert.Equal(t, 0, f.provider.callCount(contracts.LayerTiming))
}

func TestAnalyze_ModelFailureDegradesLayer(t *testing.T) {
	f := newFixture(t, fixtureOptions{overrides: map[contracts.LayerID]contracts.ModelScorer{
		contracts.LayerAsset: failingScorer{err: fmt.Errorf("ranker down: %w", contracts.ErrModelUnavailable)},
	}})

	run, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	asset := run.Signals[2]
	assert.True(t, asset.IsUnknown())
	assert.Equal(t, "degraded:"+layers.ReasonModelUnavailable, asset.Factors[0].Name)
	assert.Equal(t, contracts.StateComplete, f.transitions()[len(f.transitions())-1])
}

func TestAnalyze_DataSourceFailureFailsRun(t *testing.T) {
	tests := []struct {
		name    string
		layer   contracts.LayerID
		state   contracts.RunState
		message string
	}{
		{"sector", contracts.LayerSector, contracts.StateL2Sector, "L2 sector failed"},
		{"asset", contracts.LayerAsset, contracts.StateL3Asset, "L3 asset failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			f := newFixture(t, fixtureOptions{opts: []Option{WithRecorder(rec)}})
			f.provider.hooks[tt.layer] = func(context.Context) error {
				return errors.New("connection refused")
			}

			run, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
			require.Error(t, err)
			assert.Nil(t, run)

			assert.ErrorIs(t, err, contracts.ErrDataSourceUnavailable)
			assert.Contains(t, err.Error(), tt.message)

			var dsErr *contracts.DataSourceError
			require.True(t, errors.As(err, &dsErr))
			assert.Equal(t, tt.layer, dsErr.Layer)
			assert.False(t, dsErr.Timeout)

			states := f.transitions()
			assert.Equal(t, contracts.StateFailed, states[len(states)-1])
			assert.Equal(t, tt.state, states[len(states)-2])
			assert.Empty(t, f.storedRuns(t, "default"), "failed runs are not recorded")
			assert.Equal(t, []string{OutcomeFailed}, rec.outcomes)
		})
	}
}

func TestAnalyze_LayerTimeout(t *testing.T) {
	cfg := policy.Default()
	cfg.Orchestrator.LayerTimeout = 20 * time.Millisecond

	f := newFixture(t, fixtureOptions{cfg: cfg})
	f.provider.hooks[contracts.LayerTiming] = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
	require.Error(t, err)

	var dsErr *contracts.DataSourceError
	require.True(t, errors.As(err, &dsErr))
	assert.True(t, dsErr.Timeout)
	assert.Equal(t, contracts.LayerTiming, dsErr.Layer)
	assert.True(t, contracts.IsFatal(err))
	assert.Empty(t, f.storedRuns(t, "default"))
}

func TestAnalyze_CancelledBetweenLayers(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 매크로 fetch 도중 취소 → 매크로는 끝나고 섹터 전에 중단
	f.provider.hooks[contracts.LayerMacro] = func(context.Context) error {
		cancel()
		return nil
	}

	_, err := f.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrRunCancelled)

	assert.Equal(t, 1, f.provider.callCount(contracts.LayerMacro))
	assert.Equal(t, 0, f.provider.callCount(contracts.LayerSector))

	states := f.transitions()
	assert.Equal(t, []contracts.RunState{contracts.StateResolving, contracts.StateL1Macro, contracts.StateFailed}, states)
	assert.Empty(t, f.storedRuns(t, "default"))
}

func TestAnalyze_CancelledDuringLastLayerKeepsRun(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, fixtureOptions{ctxAware: true, opts: []Option{WithPublisher(pub)}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// L4 진행 중 취소 → 이미 시작된 레이어는 끝까지, run은 기록
	f.provider.hooks[contracts.LayerTiming] = func(context.Context) error {
		cancel()
		return nil
	}

	run, err := f.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Error(t, ctx.Err())

	stored := f.storedRuns(t, "default")
	require.Len(t, stored, 1)
	assert.Equal(t, run.RunID, stored[0].RunID)
	assert.Equal(t, contracts.StateComplete, f.transitions()[len(f.transitions())-1])

	require.Len(t, pub.ctxs, 1)
	assert.NoError(t, pub.ctxs[0])
}

func TestAnalyze_ScopeIsSnapshotted(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	// 실행 중 컨텍스트 편집
	f.provider.hooks[contracts.LayerSector] = func(context.Context) error {
		wc, err := f.store.GetContext(ctx, "alice-ctx")
		if err != nil {
			return err
		}
		wc.Assets = []string{"BTC"}
		_, err = f.store.UpdateContext(ctx, wc, wc.Version)
		return err
	}

	run, err := f.orch.Analyze(ctx, contracts.Viewer{Persona: contracts.PersonaUser, UserID: "alice"}, "alice-ctx", testAsOf)
	require.NoError(t, err)

	assert.Equal(t, int64(1), run.Scope.Version)
	assert.Equal(t, []string{"SOL", "UNI", "AAVE"}, run.Scope.Assets)

	asset, ok := run.Signal(contracts.LayerAsset)
	require.True(t, ok)
	for _, a := range asset.Label.Assets {
		assert.Contains(t, []string{"SOL", "UNI", "AAVE"}, a.Symbol)
	}

	edited, err := f.store.GetContext(ctx, "alice-ctx")
	require.NoError(t, err)
	assert.Equal(t, int64(2), edited.Version)
}

func TestAnalyze_ReturnedRunIsIsolated(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	run, err := f.orch.Analyze(context.Background(), contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	originalID := run.Signals[0].ID
	run.Signals[0].ID = "tampered"
	run.Scope.Assets[0] = "DOGE"
	run.AggregateConfidence = 42

	stored, err := f.history.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, originalID, stored.Signals[0].ID)
	assert.Equal(t, "BTC", stored.Scope.Assets[0])
	assert.NotEqual(t, 42.0, stored.AggregateConfidence)
}

func TestAnalyze_PublisherFailureDoesNotFailRun(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	f := newFixture(t, fixtureOptions{opts: []Option{WithPublisher(pub)}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run, err := f.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	require.Len(t, pub.runs, 1)
	assert.Equal(t, run.RunID, pub.runs[0].RunID)
	assert.NoError(t, pub.ctxs[0])

	pub.runs[0].Signals[0].ID = "tampered"
	stored, err := f.history.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", stored.Signals[0].ID)
}

func TestAnalyze_ResolveErrors(t *testing.T) {
	tests := []struct {
		name      string
		viewer    contracts.Viewer
		requested string
		want      error
	}{
		{"user requests another user's context", contracts.Viewer{Persona: contracts.PersonaUser, UserID: "alice"}, "bob-ctx", contracts.ErrForbiddenContext},
		{"user requests missing context", contracts.Viewer{Persona: contracts.PersonaUser, UserID: "alice"}, "nope", contracts.ErrContextNotFound},
		{"admin requests missing context", contracts.Viewer{Persona: contracts.PersonaAdmin, UserID: "root"}, "nope", contracts.ErrContextNotFound},
		{"user without id", contracts.Viewer{Persona: contracts.PersonaUser}, "", contracts.ErrForbiddenContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOptions{})

			_, err := f.orch.Analyze(context.Background(), tt.viewer, tt.requested, testAsOf)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, []contracts.RunState{contracts.StateResolving, contracts.StateFailed}, f.transitions())
			assert.Equal(t, 0, f.provider.callCount(contracts.LayerMacro))
		})
	}
}

func TestRequestAnalysis_Personas(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	alice := contracts.Viewer{Persona: contracts.PersonaUser, UserID: "alice"}

	guest, err := f.orch.RequestAnalysis(ctx, contracts.Guest(), "alice-ctx")
	require.NoError(t, err)
	assert.Equal(t, contracts.PersonaGuest, guest.Persona)
	assert.Equal(t, "default", guest.Context.ID, "guests always see the default context")
	assert.Nil(t, guest.Admin)
	assert.Nil(t, guest.Delta)
	assert.Len(t, guest.Layers, 4)
	assert.Equal(t, testAsOf, guest.AsOf, "as-of is aligned to the finest bar")

	first, err := f.orch.RequestAnalysis(ctx, alice, "alice-ctx")
	require.NoError(t, err)
	assert.Equal(t, "alice-ctx", first.Context.ID)
	assert.False(t, first.Context.IsDefault)
	assert.Nil(t, first.Delta, "no prior run yet")

	second, err := f.orch.RequestAnalysis(ctx, alice, "alice-ctx")
	require.NoError(t, err)
	require.NotNil(t, second.Delta)
	assert.Equal(t, first.RunID, second.Delta.PreviousRunID)

	admin, err := f.orch.RequestAnalysis(ctx, contracts.Viewer{Persona: contracts.PersonaAdmin, UserID: "root"}, "bob-ctx")
	require.NoError(t, err)
	require.NotNil(t, admin.Admin)
	assert.Equal(t, "bob-ctx", admin.Context.ID)
	assert.Equal(t, "testhash", admin.Admin.PolicyHash)
	assert.Equal(t, contracts.UserOwner("bob"), admin.Admin.Owner)
}

func TestRequestAnalysis_SameRunSameContentAcrossPersonas(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()

	run, err := f.orch.Analyze(ctx, contracts.Guest(), "", testAsOf)
	require.NoError(t, err)

	adapter := persona.NewAdapter(f.history, logger.Nop())
	views := make(map[contracts.Persona]*persona.Projection)
	for _, p := range contracts.AllPersonas() {
		views[p], err = adapter.Project(ctx, run, p)
		require.NoError(t, err)
	}

	for i := range views[contracts.PersonaGuest].Layers {
		g := views[contracts.PersonaGuest].Layers[i]
		a := views[contracts.PersonaAdmin].Layers[i]
		assert.Equal(t, g.Label, a.Label)
		assert.Equal(t, g.Confidence, a.Confidence)
	}
	assert.Equal(t, views[contracts.PersonaGuest].AggregateConfidence, views[contracts.PersonaAdmin].AggregateConfidence)
}

func TestRun_Concurrent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	sc, err := scope.NewResolver(f.store, logger.Nop()).Resolve(context.Background(), contracts.Guest(), "")
	require.NoError(t, err)

	const n = 8
	results := make([]*contracts.EvaluationRun, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.orch.Run(context.Background(), sc, testAsOf)
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Signals, results[i].Signals)
		ids[results[i].RunID] = true
	}
	assert.Len(t, ids, n)
	assert.Len(t, f.storedRuns(t, "default"), n)
}

func TestAsOfFor(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	now := time.Date(2026, 3, 2, 13, 47, 12, 0, time.FixedZone("KST", 9*3600))
	assert.Equal(t, time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC), f.orch.AsOfFor(now))
}

func TestGenerateRunID(t *testing.T) {
	a, b := GenerateRunID(), GenerateRunID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^run_[0-9a-f-]{36}$`, a)
}
