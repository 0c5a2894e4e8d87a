package layers

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// Degradation reasons recorded as "degraded:<reason>" factors
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonModelUnavailable = "model_unavailable"
	ReasonInvalidOutput    = "invalid_model_output"
	ReasonEmptyScope       = "empty_scope"
	ReasonUpstreamUnknown  = "upstream_unknown"
	ReasonEvaluatorError   = "evaluator_error"
)

// requestBuilder is the layer specific part of an evaluator
type requestBuilder interface {
	// build turns market data into the model request
	build(md *contracts.MarketData, upstream *contracts.Signal, scope *contracts.Scope) (*contracts.ScoreRequest, error)
	// accept validates the model label and restricts it to the scope
	accept(label contracts.Label, scope *contracts.Scope) (contracts.Label, error)
}

// Evaluator produces the signal of one layer
// ⭐ SSOT: 레이어 평가 흐름 (coverage → features → model → seal)
type Evaluator struct {
	layer       contracts.LayerID
	requirement contracts.Requirement
	builder     requestBuilder
	scorer      contracts.ModelScorer
	logger      *logger.Logger
}

var _ contracts.LayerEvaluator = (*Evaluator)(nil)

func newEvaluator(layer contracts.LayerID, req contracts.Requirement, b requestBuilder, scorer contracts.ModelScorer, log *logger.Logger) *Evaluator {
	return &Evaluator{
		layer:       layer,
		requirement: req,
		builder:     b,
		scorer:      scorer,
		logger:      log.Component("layer").WithField("layer", string(layer)),
	}
}

// Layer returns the layer this evaluator produces
func (e *Evaluator) Layer() contracts.LayerID {
	return e.layer
}

// Requirement returns the data window the layer needs
func (e *Evaluator) Requirement() contracts.Requirement {
	return e.requirement
}

// Evaluate computes the layer signal.
// Insufficient data is returned as *contracts.InsufficientDataError; a failing model
// degrades to an unknown signal with confidence 0.
func (e *Evaluator) Evaluate(ctx context.Context, md *contracts.MarketData, upstream *contracts.Signal, scope *contracts.Scope) (*contracts.Signal, error) {
	if err := md.CheckCoverage(e.layer, e.requirement); err != nil {
		return nil, err
	}
	if scope == nil {
		return nil, fmt.Errorf("%s: nil scope", e.layer)
	}
	if err := e.checkUpstream(upstream); err != nil {
		return nil, err
	}

	req, err := e.builder.build(md, upstream, scope)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return e.degrade(md, upstream, ReasonEmptyScope)
	}

	score, err := e.scorer.Score(ctx, req)
	if err != nil {
		// 타임아웃/취소는 degrade 하지 않고 상위로 전달
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s model: %w", e.layer, ctxErr)
		}
		e.logger.WithError(err).Warn("Model unavailable, degrading layer")
		return e.degrade(md, upstream, ReasonModelUnavailable)
	}

	if score == nil || math.IsNaN(score.Confidence) || score.Confidence < 0 || score.Confidence > 1 {
		e.logger.Warn("Model returned invalid confidence, degrading layer")
		return e.degrade(md, upstream, ReasonInvalidOutput)
	}
	if score.Label.Unknown {
		return e.seal(md, upstream, contracts.UnknownLabel(), 0, score.Factors)
	}

	label, err := e.builder.accept(score.Label, scope)
	if err != nil {
		e.logger.WithError(err).Warn("Model returned invalid label, degrading layer")
		return e.degrade(md, upstream, ReasonInvalidOutput)
	}
	if label.Unknown {
		return e.degrade(md, upstream, ReasonEmptyScope)
	}

	sig, err := e.seal(md, upstream, label, score.Confidence, score.Factors)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"label":      sig.Label.String(),
		"confidence": sig.Confidence,
		"signal_id":  sig.ID,
	}).Debug("Evaluated layer")

	return sig, nil
}

func (e *Evaluator) checkUpstream(upstream *contracts.Signal) error {
	want, hasUpstream := e.layer.Upstream()
	if !hasUpstream {
		if upstream != nil {
			return fmt.Errorf("%s: unexpected upstream signal %s", e.layer, upstream.ID)
		}
		return nil
	}
	if upstream == nil {
		return fmt.Errorf("%s: missing %s upstream signal", e.layer, want)
	}
	if upstream.Layer != want {
		return fmt.Errorf("%s: upstream is %s, want %s", e.layer, upstream.Layer, want)
	}
	return nil
}

func (e *Evaluator) degrade(md *contracts.MarketData, upstream *contracts.Signal, reason string) (*contracts.Signal, error) {
	return contracts.NewUnknownSignal(e.layer, md.AsOf, upstream, reason)
}

func (e *Evaluator) seal(md *contracts.MarketData, upstream *contracts.Signal, label contracts.Label, confidence float64, factors []contracts.Factor) (*contracts.Signal, error) {
	sig := &contracts.Signal{
		Layer:      e.layer,
		Label:      label,
		Confidence: confidence,
		Factors:    append([]contracts.Factor(nil), factors...),
		ComputedAt: md.AsOf,
	}
	if label.Unknown {
		sig.Confidence = 0
	}
	if upstream != nil {
		sig.UpstreamRefs = []string{upstream.ID}
	}
	if err := sig.Seal(); err != nil {
		return nil, fmt.Errorf("%s: %w", e.layer, err)
	}
	return sig, nil
}

// errLabelShape reports a label that does not belong to the layer
var errLabelShape = errors.New("label does not match layer")

// regimeOf reads the regime a signal carries, directly (macro) or through the
// "regime:<x>" factor that sector signals forward.
func regimeOf(sig *contracts.Signal) (contracts.Regime, bool) {
	if sig == nil || sig.Label.Unknown {
		return "", false
	}
	if sig.Label.Regime != "" {
		return sig.Label.Regime, true
	}
	for _, f := range sig.Factors {
		if len(f.Name) > len(regimeFactorPrefix) && f.Name[:len(regimeFactorPrefix)] == regimeFactorPrefix {
			return contracts.Regime(f.Name[len(regimeFactorPrefix):]), true
		}
	}
	return "", false
}

const regimeFactorPrefix = "regime:"
