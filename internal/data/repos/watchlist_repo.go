package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// WatchlistRepository implements contracts.WatchlistStore on PostgreSQL
// ⭐ SSOT: 관심종목 컨텍스트 저장/조회는 여기서만
type WatchlistRepository struct {
	db        DBTX
	defaultID string
	now       func() time.Time
}

var _ contracts.WatchlistStore = (*WatchlistRepository)(nil)

// NewWatchlistRepository creates a repository whose system default is defaultID
func NewWatchlistRepository(db DBTX, defaultID string) *WatchlistRepository {
	return &WatchlistRepository{db: db, defaultID: defaultID, now: time.Now}
}

const selectContext = `
	SELECT id, name, owner_kind, owner_user_id, assets, version, updated_at
	FROM analysis.watchlist_contexts
`

// GetContext loads a context by id
func (r *WatchlistRepository) GetContext(ctx context.Context, id string) (*contracts.WatchlistContext, error) {
	wc, err := scanContext(r.db.QueryRow(ctx, selectContext+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", contracts.ErrContextNotFound, id)
		}
		return nil, fmt.Errorf("failed to get context: %w", err)
	}
	return wc, nil
}

// DefaultContext loads the system default context
func (r *WatchlistRepository) DefaultContext(ctx context.Context) (*contracts.WatchlistContext, error) {
	return r.GetContext(ctx, r.defaultID)
}

// UpdateContext writes wc if the stored version still equals expectedVersion.
// expectedVersion 0 creates the context.
func (r *WatchlistRepository) UpdateContext(ctx context.Context, wc *contracts.WatchlistContext, expectedVersion int64) (*contracts.WatchlistContext, error) {
	next := wc.Clone()
	if next.ID == r.defaultID {
		next.Owner = contracts.SystemOwner()
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = r.now().UTC()
	kind, userID := ownerColumns(next.Owner)

	if expectedVersion == 0 {
		tag, err := r.db.Exec(ctx, `
			INSERT INTO analysis.watchlist_contexts
				(id, name, owner_kind, owner_user_id, assets, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, next.ID, next.Name, kind, userID, next.Assets, next.Version, next.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert context: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: %s already exists", contracts.ErrVersionConflict, next.ID)
		}
		return next, nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE analysis.watchlist_contexts
		SET name = $2, owner_kind = $3, owner_user_id = $4, assets = $5, version = $6, updated_at = $7
		WHERE id = $1 AND version = $8
	`, next.ID, next.Name, kind, userID, next.Assets, next.Version, next.UpdatedAt, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// 없는 컨텍스트인지, 버전 충돌인지 구분
		if _, err := r.GetContext(ctx, next.ID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s expected version %d", contracts.ErrVersionConflict, next.ID, expectedVersion)
	}
	return next, nil
}

// EnsureDefault seeds the default context when it does not exist yet
func (r *WatchlistRepository) EnsureDefault(ctx context.Context, name string, assets []string) (*contracts.WatchlistContext, error) {
	existing, err := r.DefaultContext(ctx)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, contracts.ErrContextNotFound) {
		return nil, err
	}

	created, err := r.UpdateContext(ctx, &contracts.WatchlistContext{
		ID:     r.defaultID,
		Name:   name,
		Assets: assets,
	}, 0)
	if errors.Is(err, contracts.ErrVersionConflict) {
		// 동시에 다른 인스턴스가 생성
		return r.DefaultContext(ctx)
	}
	return created, err
}

// ListByOwner returns the contexts of an owner ordered by id
func (r *WatchlistRepository) ListByOwner(ctx context.Context, owner contracts.Owner) ([]*contracts.WatchlistContext, error) {
	kind, userID := ownerColumns(owner)

	rows, err := r.db.Query(ctx, selectContext+` WHERE owner_kind = $1 AND owner_user_id = $2 ORDER BY id`, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	defer rows.Close()

	out := make([]*contracts.WatchlistContext, 0)
	for rows.Next() {
		wc, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		out = append(out, wc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contexts: %w", err)
	}
	return out, nil
}

func scanContext(row pgx.Row) (*contracts.WatchlistContext, error) {
	var wc contracts.WatchlistContext
	var kind, userID string
	if err := row.Scan(&wc.ID, &wc.Name, &kind, &userID, &wc.Assets, &wc.Version, &wc.UpdatedAt); err != nil {
		return nil, err
	}
	wc.Owner = contracts.Owner{Kind: contracts.OwnerKind(kind), UserID: userID}
	wc.UpdatedAt = wc.UpdatedAt.UTC()
	return &wc, nil
}
