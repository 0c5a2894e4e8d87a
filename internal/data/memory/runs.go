package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// RunStore implements contracts.RunHistoryStore in memory.
// Runs are kept ordered by ComputedAt (then RunID), independent of append order.
type RunStore struct {
	mu   sync.RWMutex
	byID map[string]*contracts.EvaluationRun
	runs []*contracts.EvaluationRun
}

var _ contracts.RunHistoryStore = (*RunStore)(nil)

// NewRunStore creates an empty run history
func NewRunStore() *RunStore {
	return &RunStore{byID: make(map[string]*contracts.EvaluationRun)}
}

// Append stores a copy of a completed run. Runs are never replaced.
func (s *RunStore) Append(_ context.Context, run *contracts.EvaluationRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("append run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[run.RunID]; exists {
		return fmt.Errorf("run %s: %w", run.RunID, contracts.ErrRunExists)
	}

	stored := run.Clone()
	s.byID[stored.RunID] = stored

	idx := sort.Search(len(s.runs), func(i int) bool {
		return runAfter(s.runs[i], stored)
	})
	s.runs = append(s.runs, nil)
	copy(s.runs[idx+1:], s.runs[idx:])
	s.runs[idx] = stored

	return nil
}

// Get returns a copy of a run
func (s *RunStore) Get(_ context.Context, runID string) (*contracts.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.byID[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, contracts.ErrRunNotFound)
	}
	return run.Clone(), nil
}

// LatestBefore returns the newest run of the context+owner computed before the given time
func (s *RunStore) LatestBefore(_ context.Context, contextID string, owner contracts.Owner, before time.Time, excludeRunID string) (*contracts.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if run.RunID == excludeRunID || run.Scope.ContextID != contextID || run.Scope.Owner != owner {
			continue
		}
		if run.ComputedAt.Before(before) {
			return run.Clone(), nil
		}
	}
	return nil, fmt.Errorf("no run for %s before %s: %w", contextID, before.Format(time.RFC3339), contracts.ErrRunNotFound)
}

// List returns the newest runs of a context first. limit <= 0 returns all.
func (s *RunStore) List(_ context.Context, contextID string, limit int) ([]*contracts.EvaluationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*contracts.EvaluationRun, 0)
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Scope.ContextID != contextID {
			continue
		}
		out = append(out, s.runs[i].Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// runAfter reports whether a sorts after b
func runAfter(a, b *contracts.EvaluationRun) bool {
	if !a.ComputedAt.Equal(b.ComputedAt) {
		return a.ComputedAt.After(b.ComputedAt)
	}
	return a.RunID > b.RunID
}
