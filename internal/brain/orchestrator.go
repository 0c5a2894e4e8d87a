package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/cryptopredict/internal/confidence"
	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/layers"
	"github.com/wonny/cryptopredict/internal/persona"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/internal/scope"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// Run outcomes reported to the metrics recorder
const (
	OutcomeComplete = "complete"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Recorder receives operational measurements. pkg/metrics implements it.
type Recorder interface {
	ObserveLayer(layer contracts.LayerID, d time.Duration, degraded bool)
	ObserveRun(outcome string, aggregate float64, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLayer(contracts.LayerID, time.Duration, bool) {}
func (nopRecorder) ObserveRun(string, float64, time.Duration) {}

// TransitionFunc observes state machine transitions
type TransitionFunc func(runID string, from, to contracts.RunState)

// Deps holds the collaborators of the orchestrator
type Deps struct {
	Resolver   *scope.Resolver
	Provider   contracts.MarketDataProvider
	Evaluators []contracts.LayerEvaluator
	History    contracts.RunHistoryStore
	Adapter    *persona.Adapter
	Policy     *policy.Config
	PolicyHash string
}

// Option customizes an orchestrator
type Option func(*Orchestrator)

// WithClock injects the wall clock (StartedAt/ComputedAt/timings, default as-of)
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = now }
}

// WithRunIDs injects the run id generator
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newRunID = next }
}

// WithPublisher receives every completed run
func WithPublisher(p contracts.RunPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithTransitionHook observes state transitions
func WithTransitionHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// Orchestrator drives the four-layer chain for one scope at a time
// ⭐ SSOT: 레이어 체인 조율은 여기서만
//
// Resolving → L1 → L2 → L3 → L4 → Propagating → Complete (Failed from any state)
//
// It keeps no mutable state between runs, so Run may be called concurrently.
type Orchestrator struct {
	resolver   *scope.Resolver
	provider   contracts.MarketDataProvider
	evaluators []contracts.LayerEvaluator
	propagator *confidence.Propagator
	history    contracts.RunHistoryStore
	adapter    *persona.Adapter
	policy     *policy.Config
	policyHash string

	publisher    contracts.RunPublisher
	metrics      Recorder
	onTransition TransitionFunc
	clock        func() time.Time
	newRunID     func() string

	logger *logger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Deps, log *logger.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Resolver == nil || deps.Provider == nil || deps.History == nil || deps.Adapter == nil || deps.Policy == nil {
		return nil, errors.New("orchestrator: missing dependency")
	}

	layerIDs := contracts.AllLayers()
	if len(deps.Evaluators) != len(layerIDs) {
		return nil, fmt.Errorf("orchestrator: need %d evaluators, got %d", len(layerIDs), len(deps.Evaluators))
	}
	for i, e := range deps.Evaluators {
		if e.Layer() != layerIDs[i] {
			return nil, fmt.Errorf("orchestrator: evaluator %d is %s, want %s", i, e.Layer(), layerIDs[i])
		}
	}

	o := &Orchestrator{
		resolver:   deps.Resolver,
		provider:   deps.Provider,
		evaluators: deps.Evaluators,
		propagator: confidence.NewPropagator(deps.Policy.Disagreement.Rules),
		history:    deps.History,
		adapter:    deps.Adapter,
		policy:     deps.Policy,
		policyHash: deps.PolicyHash,
		metrics:    nopRecorder{},
		clock:      time.Now,
		newRunID:   GenerateRunID,
		logger:     log.Component("brain"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RequestAnalysis is the presentation entry point: resolve, run, project.
// Errors: ErrContextNotFound, ErrForbiddenContext, ErrDataSourceUnavailable, ErrRunCancelled.
func (o *Orchestrator) RequestAnalysis(ctx context.Context, viewer contracts.Viewer, requestedContextID string) (*persona.Projection, error) {
	run, err := o.Analyze(ctx, viewer, requestedContextID, o.AsOfFor(o.clock()))
	if err != nil {
		return nil, err
	}
	return o.adapter.Project(ctx, run, viewer.Persona)
}

// Analyze resolves the viewer's scope and runs the chain against data as of asOf
func (o *Orchestrator) Analyze(ctx context.Context, viewer contracts.Viewer, requestedContextID string, asOf time.Time) (*contracts.EvaluationRun, error) {
	runID := o.newRunID()
	o.transition(runID, "", contracts.StateResolving)

	sc, err := o.resolver.Resolve(ctx, viewer, requestedContextID)
	if err != nil {
		o.transition(runID, contracts.StateResolving, contracts.StateFailed)
		o.metrics.ObserveRun(OutcomeFailed, 0, 0)
		return nil, fmt.Errorf("resolve context: %w", err)
	}

	return o.run(ctx, runID, sc, asOf)
}

// Run executes the chain for an already resolved scope
func (o *Orchestrator) Run(ctx context.Context, sc *contracts.Scope, asOf time.Time) (*contracts.EvaluationRun, error) {
	runID := o.newRunID()
	o.transition(runID, "", contracts.StateResolving)
	return o.run(ctx, runID, sc, asOf)
}

// AsOfFor aligns a wall clock time to the finest layer granularity, so requests
// within the same bar evaluate the same data.
func (o *Orchestrator) AsOfFor(now time.Time) time.Time {
	finest := time.Duration(0)
	for _, e := range o.evaluators {
		g := e.Requirement().Granularity
		if g > 0 && (finest == 0 || g < finest) {
			finest = g
		}
	}
	if finest == 0 {
		return now.UTC()
	}
	return now.UTC().Truncate(finest)
}

func (o *Orchestrator) run(ctx context.Context, runID string, sc *contracts.Scope, asOf time.Time) (*contracts.EvaluationRun, error) {
	startedAt := o.clock()
	state := contracts.StateResolving

	run := &contracts.EvaluationRun{
		RunID:      runID,
		Scope:      sc.Clone(),
		Signals:    make([]contracts.Signal, 0, len(o.evaluators)),
		AsOf:       asOf.UTC(),
		StartedAt:  startedAt,
		Timings:    make([]contracts.LayerLatency, 0, len(o.evaluators)),
		PolicyHash: o.policyHash,
	}
	// 실행 중 컨텍스트가 바뀌어도 이 스냅샷으로 평가
	snapshot := run.Scope.Clone()

	log := o.logger.ForRun(runID, snapshot.ContextID)
	log.WithFields(map[string]interface{}{
		"as_of":         run.AsOf.Format(time.RFC3339),
		"scope_version": snapshot.Version,
		"assets":        len(snapshot.Assets),
	}).Info("Starting analysis run")

	fail := func(err error) (*contracts.EvaluationRun, error) {
		o.transition(runID, state, contracts.StateFailed)
		o.metrics.ObserveRun(OutcomeFailed, 0, o.clock().Sub(startedAt))
		log.WithError(err).WithField("state", string(state)).Warn("Analysis run failed")
		return nil, err
	}

	var upstream *contracts.Signal
	shortCircuit := false

	for _, e := range o.evaluators {
		layer := e.Layer()

		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("before %s: %w (%v)", layer, contracts.ErrRunCancelled, err))
		}

		next := contracts.StateForLayer(layer)
		o.transition(runID, state, next)
		state = next

		layerStart := o.clock()
		var sig *contracts.Signal
		var err error
		if shortCircuit {
			sig, err = contracts.NewUnknownSignal(layer, run.AsOf, upstream, layers.ReasonUpstreamUnknown)
		} else {
			sig, err = o.evaluateLayer(ctx, e, &snapshot, upstream, run.AsOf, log)
		}
		if err != nil {
			return fail(fmt.Errorf("%s %s failed: %w", layer.ShortName(), layer, err))
		}

		elapsed := o.clock().Sub(layerStart)
		degraded := sig.IsUnknown()
		run.Timings = append(run.Timings, contracts.LayerLatency{
			Layer:     layer,
			StartedAt: layerStart,
			Duration:  elapsed,
			Degraded:  degraded,
		})
		o.metrics.ObserveLayer(layer, elapsed, degraded)

		log.WithFields(map[string]interface{}{
			"layer":      string(layer),
			"label":      sig.Label.String(),
			"confidence": sig.Confidence,
			"duration":   elapsed.String(),
		}).Info(fmt.Sprintf("%s completed", layer.ShortName()))

		if degraded && o.policy.Orchestrator.UnknownPolicy == policy.UnknownShortCircuit {
			shortCircuit = true
		}

		run.Signals = append(run.Signals, *sig)
		upstream = sig
	}

	o.transition(runID, state, contracts.StatePropagating)
	state = contracts.StatePropagating

	result, err := o.propagator.Propagate(run.Signals)
	if err != nil {
		return fail(fmt.Errorf("propagate: %w", err))
	}
	run.AggregateConfidence = result.Aggregate
	run.Disagreement = result.Disagreement
	run.Conflicts = result.Conflicts
	run.ComputedAt = o.clock()

	if err := run.Validate(); err != nil {
		return fail(err)
	}
	// 네 레이어가 끝난 run은 호출자 취소와 무관하게 기록
	if err := o.history.Append(context.WithoutCancel(ctx), run); err != nil {
		return fail(fmt.Errorf("append run: %w", err))
	}

	o.transition(runID, state, contracts.StateComplete)

	outcome := OutcomeComplete
	if run.Degraded() {
		outcome = OutcomeDegraded
	}
	o.metrics.ObserveRun(outcome, run.AggregateConfidence, run.ComputedAt.Sub(startedAt))

	log.WithFields(map[string]interface{}{
		"aggregate":    run.AggregateConfidence,
		"disagreement": string(run.Disagreement),
		"outcome":      outcome,
		"duration":     run.ComputedAt.Sub(startedAt).String(),
	}).Info("Analysis run completed")

	// 발행 실패는 run 실패가 아님
	if o.publisher != nil {
		if err := o.publisher.PublishRun(context.WithoutCancel(ctx), run.Clone()); err != nil {
			log.WithError(err).Warn("Failed to publish run")
		}
	}

	return run.Clone(), nil
}

// evaluateLayer fetches and evaluates one layer under the per-layer timeout.
// The layer call is detached from run cancellation; cancellation is only observed
// between layers.
func (o *Orchestrator) evaluateLayer(ctx context.Context, e contracts.LayerEvaluator, sc *contracts.Scope, upstream *contracts.Signal, asOf time.Time, log *logger.Logger) (*contracts.Signal, error) {
	layer := e.Layer()

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.policy.Orchestrator.LayerTimeout)
	defer cancel()

	md, err := o.provider.FetchWindow(lctx, layer, sc, e.Requirement(), asOf)
	if err != nil {
		if errors.Is(err, contracts.ErrInsufficientData) && lctx.Err() == nil {
			log.WithError(err).WithField("layer", string(layer)).Warn("Insufficient data, layer degraded")
			return contracts.NewUnknownSignal(layer, asOf, upstream, layers.ReasonInsufficientData)
		}
		return nil, contracts.NewDataSourceError(layer, err)
	}

	sig, err := e.Evaluate(lctx, md, upstream, sc)
	switch {
	case err == nil:
		return sig, nil
	case lctx.Err() != nil:
		return nil, contracts.NewDataSourceError(layer, lctx.Err())
	case errors.Is(err, contracts.ErrDataSourceUnavailable):
		return nil, contracts.NewDataSourceError(layer, err)
	case errors.Is(err, contracts.ErrInsufficientData):
		log.WithError(err).WithField("layer", string(layer)).Warn("Insufficient data, layer degraded")
		return contracts.NewUnknownSignal(layer, asOf, upstream, layers.ReasonInsufficientData)
	default:
		log.WithError(err).WithField("layer", string(layer)).Error("Evaluator failed, layer degraded")
		return contracts.NewUnknownSignal(layer, asOf, upstream, layers.ReasonEvaluatorError)
	}
}

func (o *Orchestrator) transition(runID string, from, to contracts.RunState) {
	if o.onTransition != nil {
		o.onTransition(runID, from, to)
	}
}

// GenerateRunID generates a unique run ID
func GenerateRunID() string {
	return fmt.Sprintf("run_%s", uuid.NewString())
}
