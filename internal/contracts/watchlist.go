package contracts

import (
	"fmt"
	"time"
)

// Persona determines presentation, never underlying computation
type Persona string

const (
	PersonaGuest Persona = "guest"
	PersonaUser  Persona = "user"
	PersonaAdmin Persona = "admin"
)

// AllPersonas returns every persona
func AllPersonas() []Persona {
	return []Persona{PersonaGuest, PersonaUser, PersonaAdmin}
}

// ParsePersona converts a string into a Persona
func ParsePersona(s string) (Persona, error) {
	switch Persona(s) {
	case PersonaGuest, PersonaUser, PersonaAdmin:
		return Persona(s), nil
	case "":
		return PersonaGuest, nil
	default:
		return "", fmt.Errorf("unknown persona %q", s)
	}
}

// Viewer is supplied by the identity/session provider.
// This core never authenticates credentials itself.
type Viewer struct {
	Persona Persona `json:"persona"`
	UserID  string  `json:"user_id,omitempty"`
}

// Guest returns an anonymous viewer
func Guest() Viewer {
	return Viewer{Persona: PersonaGuest}
}

// Validate checks the viewer is consistent
func (v Viewer) Validate() error {
	switch v.Persona {
	case PersonaGuest:
		return nil
	case PersonaUser, PersonaAdmin:
		if v.UserID == "" {
			return fmt.Errorf("%s viewer requires a user id", v.Persona)
		}
		return nil
	default:
		return fmt.Errorf("unknown persona %q", v.Persona)
	}
}

// OwnerKind tells who owns a watchlist context
type OwnerKind string

const (
	OwnerSystem OwnerKind = "system"
	OwnerUser   OwnerKind = "user"
)

// Owner references the owner of a watchlist context
type Owner struct {
	Kind   OwnerKind `json:"kind"`
	UserID string    `json:"user_id,omitempty"`
}

// SystemOwner returns the system owner
func SystemOwner() Owner {
	return Owner{Kind: OwnerSystem}
}

// UserOwner returns an owner for a specific user
func UserOwner(userID string) Owner {
	return Owner{Kind: OwnerUser, UserID: userID}
}

// OwnedBy reports whether the owner is the given user
func (o Owner) OwnedBy(userID string) bool {
	return o.Kind == OwnerUser && userID != "" && o.UserID == userID
}

// String returns "system" or "user:<id>"
func (o Owner) String() string {
	if o.Kind == OwnerUser {
		return "user:" + o.UserID
	}
	return string(o.Kind)
}

// WatchlistContext is a named, ordered set of tracked assets
// ⭐ SSOT: 관심종목 컨텍스트 (owner가 소유, Run은 참조만)
type WatchlistContext struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     Owner     `json:"owner"`
	Assets    []string  `json:"assets"`
	Version   int64     `json:"version"` // optimistic concurrency
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy
func (w *WatchlistContext) Clone() *WatchlistContext {
	if w == nil {
		return nil
	}
	out := *w
	out.Assets = cloneSlice(w.Assets)
	return &out
}

// Contains checks if an asset is tracked by the context
func (w *WatchlistContext) Contains(symbol string) bool {
	for _, a := range w.Assets {
		if a == symbol {
			return true
		}
	}
	return false
}

// Scope is the resolved snapshot of a watchlist context used by one run.
// A run always evaluates against the snapshot it resolved, even if the context is
// edited mid-run.
type Scope struct {
	ContextID string   `json:"context_id"`
	Name      string   `json:"name"`
	Owner     Owner    `json:"owner"`
	Version   int64    `json:"version"`
	Assets    []string `json:"assets"`
	IsDefault bool     `json:"is_default"`
}

// ScopeFromContext snapshots a context
func ScopeFromContext(w *WatchlistContext, isDefault bool) *Scope {
	return &Scope{
		ContextID: w.ID,
		Name:      w.Name,
		Owner:     w.Owner,
		Version:   w.Version,
		Assets:    cloneSlice(w.Assets),
		IsDefault: isDefault,
	}
}

// Contains checks if an asset is in scope
func (s *Scope) Contains(symbol string) bool {
	for _, a := range s.Assets {
		if a == symbol {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (s Scope) Clone() Scope {
	out := s
	out.Assets = cloneSlice(s.Assets)
	return out
}
