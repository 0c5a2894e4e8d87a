package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/persona"
	"github.com/wonny/cryptopredict/pkg/logger"
)

const maxListLimit = 200

// AnalysisService runs a fresh analysis and projects it for the viewer
type AnalysisService interface {
	RequestAnalysis(ctx context.Context, viewer contracts.Viewer, requestedContextID string) (*persona.Projection, error)
}

// AnalysisHandler handles analysis and run history endpoints
// ⭐ SSOT: 분석 API 핸들러는 이 구조체에서만
type AnalysisHandler struct {
	analysis AnalysisService
	history  contracts.RunHistoryStore
	adapter  *persona.Adapter
	logger   *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(
	analysis AnalysisService,
	history contracts.RunHistoryStore,
	adapter *persona.Adapter,
	log *logger.Logger,
) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		history:  history,
		adapter:  adapter,
		logger:   log.Component("api"),
	}
}

// GetAnalysis runs the chain for the requested context
// GET /api/analysis?context=<id>
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerFrom(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	contextID := r.URL.Query().Get("context")
	projection, err := h.analysis.RequestAnalysis(r.Context(), viewer, contextID)
	if err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"persona":    string(viewer.Persona),
			"context_id": contextID,
		}).Warn("Analysis request failed")
		respondErrorView(w, err, h.adapter.ProjectError(viewer.Persona, err))
		return
	}

	respondJSON(w, http.StatusOK, projection)
}

// GetRun returns the admin projection of a stored run
// GET /api/runs/{id}
func (h *AnalysisHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	run, err := h.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErrorView(w, err, h.adapter.ProjectError(contracts.PersonaAdmin, err))
		return
	}

	projection, err := h.adapter.Project(r.Context(), run, contracts.PersonaAdmin)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.RunID).Error("Failed to project run")
		respondErrorView(w, err, h.adapter.ProjectError(contracts.PersonaAdmin, err))
		return
	}

	respondJSON(w, http.StatusOK, projection)
}

// ListRuns returns run summaries of a context, newest first
// GET /api/contexts/{id}/runs?limit=n
func (h *AnalysisHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	contextID := mux.Vars(r)["id"]
	runs, err := h.history.List(r.Context(), contextID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("context_id", contextID).Error("Failed to list runs")
		respondErrorView(w, err, h.adapter.ProjectError(contracts.PersonaAdmin, err))
		return
	}

	summaries := make([]contracts.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, run.Summary())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"context_id": contextID,
		"count":      len(summaries),
		"runs":       summaries,
	})
}

func (h *AnalysisHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	viewer, err := viewerFrom(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if viewer.Persona != contracts.PersonaAdmin {
		respondError(w, http.StatusForbidden, "admin only")
		return false
	}
	return true
}
