package contracts

import (
	"context"
	"time"
)

// LayerEvaluator produces the signal of one layer (L1~L4)
// ⭐ SSOT: 레이어 평가 인터페이스
type LayerEvaluator interface {
	Layer() LayerID
	Requirement() Requirement
	Evaluate(ctx context.Context, md *MarketData, upstream *Signal, scope *Scope) (*Signal, error)
}

// MarketDataProvider fetches the data window a layer needs.
// Failures are reported as ErrDataSourceUnavailable.
type MarketDataProvider interface {
	FetchWindow(ctx context.Context, layer LayerID, scope *Scope, req Requirement, asOf time.Time) (*MarketData, error)
}

// ModelScorer is the pluggable scoring backend of a layer.
// Failures are reported as ErrModelUnavailable.
type ModelScorer interface {
	Score(ctx context.Context, req *ScoreRequest) (*Score, error)
}

// WatchlistStore is read-only from the orchestrator's perspective.
// UpdateContext exists for the admin editing collaborator and enforces optimistic versioning.
type WatchlistStore interface {
	GetContext(ctx context.Context, id string) (*WatchlistContext, error)
	DefaultContext(ctx context.Context) (*WatchlistContext, error)
	UpdateContext(ctx context.Context, wc *WatchlistContext, expectedVersion int64) (*WatchlistContext, error)
}

// RunHistoryStore is the append-only history of completed runs
type RunHistoryStore interface {
	Append(ctx context.Context, run *EvaluationRun) error
	Get(ctx context.Context, runID string) (*EvaluationRun, error)
	// LatestBefore returns the most recent run for the context+owner computed strictly
	// before the given time, excluding excludeRunID. ErrRunNotFound if none.
	LatestBefore(ctx context.Context, contextID string, owner Owner, before time.Time, excludeRunID string) (*EvaluationRun, error)
	List(ctx context.Context, contextID string, limit int) ([]*EvaluationRun, error)
}

// RunReader is the read-only view of history used by projections
type RunReader interface {
	LatestBefore(ctx context.Context, contextID string, owner Owner, before time.Time, excludeRunID string) (*EvaluationRun, error)
}

// RunPublisher receives completed runs (event stream, live subscribers)
type RunPublisher interface {
	PublishRun(ctx context.Context, run *EvaluationRun) error
}
