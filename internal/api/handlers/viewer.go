package handlers

import (
	"net/http"
	"strings"

	"github.com/wonny/cryptopredict/internal/contracts"
)

// Identity headers set by the upstream session provider
const (
	HeaderPersona = "X-Viewer-Persona"
	HeaderUserID  = "X-Viewer-ID"
)

// viewerFrom reads the viewer from request headers.
// Missing headers mean a guest.
func viewerFrom(r *http.Request) (contracts.Viewer, error) {
	p, err := contracts.ParsePersona(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderPersona))))
	if err != nil {
		return contracts.Viewer{}, err
	}

	v := contracts.Viewer{Persona: p}
	if p != contracts.PersonaGuest {
		v.UserID = strings.TrimSpace(r.Header.Get(HeaderUserID))
	}
	if err := v.Validate(); err != nil {
		return contracts.Viewer{}, err
	}
	return v, nil
}
