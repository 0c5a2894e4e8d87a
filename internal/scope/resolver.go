package scope

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// Resolver maps (viewer, requested context) to the scope of a run
// ⭐ SSOT: 컨텍스트 접근 규칙은 여기서만 (읽기 전용)
type Resolver struct {
	store  contracts.WatchlistStore
	logger *logger.Logger
}

// NewResolver creates a new context resolver
func NewResolver(store contracts.WatchlistStore, log *logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: log.Component("scope"),
	}
}

// Resolve returns a snapshot of the context the viewer is allowed to analyze.
//
//	guest → system default, whatever was requested
//	user  → own context; empty, default or system-owned id → default;
//	        another user's context → ErrForbiddenContext
//	admin → exactly the requested context; empty → default
//
// Unknown ids return ErrContextNotFound for users and admins.
func (r *Resolver) Resolve(ctx context.Context, viewer contracts.Viewer, requestedID string) (*contracts.Scope, error) {
	if err := viewer.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrForbiddenContext, err)
	}

	def, err := r.store.DefaultContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default context: %w", err)
	}

	if viewer.Persona == contracts.PersonaGuest || requestedID == "" || requestedID == def.ID {
		if viewer.Persona == contracts.PersonaGuest && requestedID != "" && requestedID != def.ID {
			r.logger.WithField("requested", requestedID).Debug("Guest request substituted with default context")
		}
		return contracts.ScopeFromContext(def, true), nil
	}

	wc, err := r.store.GetContext(ctx, requestedID)
	if err != nil {
		if errors.Is(err, contracts.ErrContextNotFound) {
			return nil, fmt.Errorf("context %q: %w", requestedID, contracts.ErrContextNotFound)
		}
		return nil, fmt.Errorf("load context %q: %w", requestedID, err)
	}

	if viewer.Persona == contracts.PersonaAdmin {
		return contracts.ScopeFromContext(wc, false), nil
	}

	// user
	switch {
	case wc.Owner.Kind == contracts.OwnerSystem:
		return contracts.ScopeFromContext(def, true), nil
	case wc.Owner.OwnedBy(viewer.UserID):
		return contracts.ScopeFromContext(wc, false), nil
	default:
		r.logger.WithFields(map[string]interface{}{
			"user_id":   viewer.UserID,
			"requested": requestedID,
		}).Warn("Forbidden context requested")
		return nil, fmt.Errorf("context %q: %w", requestedID, contracts.ErrForbiddenContext)
	}
}
