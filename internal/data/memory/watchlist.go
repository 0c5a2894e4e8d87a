package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// WatchlistStore implements contracts.WatchlistStore in memory.
// Every read and write copies, so callers never share the stored assets slice.
type WatchlistStore struct {
	mu        sync.RWMutex
	contexts  map[string]*contracts.WatchlistContext
	defaultID string
	now       func() time.Time
}

var _ contracts.WatchlistStore = (*WatchlistStore)(nil)

// NewWatchlistStore creates a store seeded with the system default context
func NewWatchlistStore(def *contracts.WatchlistContext) *WatchlistStore {
	s := &WatchlistStore{
		contexts:  make(map[string]*contracts.WatchlistContext),
		defaultID: def.ID,
		now:       time.Now,
	}

	seed := def.Clone()
	seed.Owner = contracts.SystemOwner()
	if seed.Version == 0 {
		seed.Version = 1
	}
	s.contexts[seed.ID] = seed
	return s
}

// GetContext returns a copy of a context
func (s *WatchlistStore) GetContext(_ context.Context, id string) (*contracts.WatchlistContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wc, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("context %q: %w", id, contracts.ErrContextNotFound)
	}
	return wc.Clone(), nil
}

// DefaultContext returns a copy of the system default context
func (s *WatchlistStore) DefaultContext(ctx context.Context) (*contracts.WatchlistContext, error) {
	return s.GetContext(ctx, s.defaultID)
}

// UpdateContext creates (expectedVersion 0) or replaces a context.
// The write succeeds only if the stored version still equals expectedVersion.
func (s *WatchlistStore) UpdateContext(_ context.Context, wc *contracts.WatchlistContext, expectedVersion int64) (*contracts.WatchlistContext, error) {
	if wc == nil || wc.ID == "" {
		return nil, fmt.Errorf("context id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.contexts[wc.ID]
	switch {
	case !exists && expectedVersion != 0:
		return nil, fmt.Errorf("context %q: %w", wc.ID, contracts.ErrContextNotFound)
	case exists && current.Version != expectedVersion:
		return nil, fmt.Errorf("context %q at version %d, expected %d: %w", wc.ID, current.Version, expectedVersion, contracts.ErrVersionConflict)
	}

	next := wc.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = s.now().UTC()
	if wc.ID == s.defaultID {
		next.Owner = contracts.SystemOwner()
	}
	s.contexts[next.ID] = next

	return next.Clone(), nil
}

// List returns copies of every context, ordered by id
func (s *WatchlistStore) List(_ context.Context) []*contracts.WatchlistContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*contracts.WatchlistContext, 0, len(s.contexts))
	for _, wc := range s.contexts {
		out = append(out, wc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
