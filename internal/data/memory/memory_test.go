package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cryptopredict/internal/contracts"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func defaultContext() *contracts.WatchlistContext {
	return &contracts.WatchlistContext{ID: "default", Name: "Top 10", Assets: []string{"BTC", "ETH", "SOL"}}
}

func testRun(t *testing.T, runID, contextID string, owner contracts.Owner, computedAt time.Time) *contracts.EvaluationRun {
	t.Helper()

	signals := make([]contracts.Signal, 0, 4)
	for i, layer := range contracts.AllLayers() {
		sig := contracts.Signal{Layer: layer, Label: contracts.Label{Regime: contracts.RegimeBull}, Confidence: 0.8, ComputedAt: base}
		if i > 0 {
			sig.Label = contracts.UnknownLabel()
			sig.Confidence = 0
			sig.UpstreamRefs = []string{signals[i-1].ID}
		}
		require.NoError(t, sig.Seal())
		signals = append(signals, sig)
	}

	return &contracts.EvaluationRun{
		RunID:        runID,
		Scope:        contracts.Scope{ContextID: contextID, Owner: owner, Version: 1, Assets: []string{"BTC"}},
		Signals:      signals,
		Disagreement: contracts.DisagreementUndetermined,
		AsOf:         base,
		ComputedAt:   computedAt,
	}
}

func TestWatchlistStore_DefaultAndCopies(t *testing.T) {
	ctx := context.Background()
	store := NewWatchlistStore(defaultContext())

	def, err := store.DefaultContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.SystemOwner(), def.Owner)
	assert.Equal(t, int64(1), def.Version)

	def.Assets[0] = "DOGE"
	again, err := store.GetContext(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "BTC", again.Assets[0], "stored context must not alias caller slices")

	_, err = store.GetContext(ctx, "missing")
	assert.ErrorIs(t, err, contracts.ErrContextNotFound)
}

func TestWatchlistStore_OptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewWatchlistStore(defaultContext())
	store.now = func() time.Time { return base }

	created, err := store.UpdateContext(ctx, &contracts.WatchlistContext{
		ID: "alice-defi", Name: "DeFi", Owner: contracts.UserOwner("alice"), Assets: []string{"UNI", "AAVE"},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, base, created.UpdatedAt)

	created.Assets = append(created.Assets, "LINK")
	updated, err := store.UpdateContext(ctx, created, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	// 오래된 버전으로 쓰기 → 충돌
	_, err = store.UpdateContext(ctx, created, 1)
	assert.ErrorIs(t, err, contracts.ErrVersionConflict)

	_, err = store.UpdateContext(ctx, &contracts.WatchlistContext{ID: "ghost"}, 3)
	assert.ErrorIs(t, err, contracts.ErrContextNotFound)

	assert.Len(t, store.List(ctx), 2)
}

func TestRunStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	run := testRun(t, "run_1", "default", contracts.SystemOwner(), base)

	require.NoError(t, store.Append(ctx, run))
	assert.ErrorIs(t, store.Append(ctx, run), contracts.ErrRunExists)

	// 원본 수정이 저장본에 영향 없음
	run.Signals[0].Confidence = 0.1
	got, err := store.Get(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, got.Signals[0].Confidence)

	got.Signals[0].Label.Regime = contracts.RegimeBear
	again, err := store.Get(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, contracts.RegimeBull, again.Signals[0].Label.Regime)

	_, err = store.Get(ctx, "run_2")
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)
}

func TestRunStore_RejectsInvalidRun(t *testing.T) {
	run := testRun(t, "run_1", "default", contracts.SystemOwner(), base)
	run.Signals = run.Signals[:3]

	assert.Error(t, NewRunStore().Append(context.Background(), run))
}

func TestRunStore_OrderedByComputedAt(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	system := contracts.SystemOwner()

	// completion order differs from computed order
	require.NoError(t, store.Append(ctx, testRun(t, "run_c", "default", system, base.Add(3*time.Minute))))
	require.NoError(t, store.Append(ctx, testRun(t, "run_a", "default", system, base.Add(1*time.Minute))))
	require.NoError(t, store.Append(ctx, testRun(t, "run_b", "default", system, base.Add(2*time.Minute))))
	require.NoError(t, store.Append(ctx, testRun(t, "run_x", "alice-defi", contracts.UserOwner("alice"), base.Add(4*time.Minute))))

	runs, err := store.List(ctx, "default", 0)
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.RunID
	}
	assert.Equal(t, []string{"run_c", "run_b", "run_a"}, ids)

	limited, err := store.List(ctx, "default", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	prior, err := store.LatestBefore(ctx, "default", system, base.Add(3*time.Minute), "run_c")
	require.NoError(t, err)
	assert.Equal(t, "run_b", prior.RunID)

	_, err = store.LatestBefore(ctx, "default", system, base.Add(time.Minute), "")
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)

	// owner must match
	_, err = store.LatestBefore(ctx, "alice-defi", contracts.UserOwner("bob"), base.Add(time.Hour), "")
	assert.ErrorIs(t, err, contracts.ErrRunNotFound)
}
