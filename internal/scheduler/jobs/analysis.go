package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/pkg/logger"
)

// systemUserID identifies scheduled runs over non-default contexts
const systemUserID = "scheduler"

// Analyzer runs the layer chain. brain.Orchestrator implements it.
type Analyzer interface {
	Analyze(ctx context.Context, viewer contracts.Viewer, requestedContextID string, asOf time.Time) (*contracts.EvaluationRun, error)
	AsOfFor(now time.Time) time.Time
}

// AnalysisJob refreshes the analysis of one watchlist context on a cron schedule.
// An empty context id means the system default, analyzed as a guest would see it.
type AnalysisJob struct {
	analyzer  Analyzer
	contextID string
	schedule  string
	now       func() time.Time
	logger    *logger.Logger
}

// NewAnalysisJob creates a new analysis job
func NewAnalysisJob(analyzer Analyzer, contextID, schedule string, log *logger.Logger) *AnalysisJob {
	return &AnalysisJob{
		analyzer:  analyzer,
		contextID: contextID,
		schedule:  schedule,
		now:       time.Now,
		logger:    log.Component("jobs"),
	}
}

// Name returns the job name
func (j *AnalysisJob) Name() string {
	if j.contextID == "" {
		return "analysis_default"
	}
	return "analysis_" + j.contextID
}

// Schedule returns the cron schedule (with seconds)
func (j *AnalysisJob) Schedule() string {
	return j.schedule
}

// Run executes one analysis. A degraded run still counts as success.
func (j *AnalysisJob) Run(ctx context.Context) error {
	viewer := contracts.Guest()
	if j.contextID != "" {
		viewer = contracts.Viewer{Persona: contracts.PersonaAdmin, UserID: systemUserID}
	}

	asOf := j.analyzer.AsOfFor(j.now())
	run, err := j.analyzer.Analyze(ctx, viewer, j.contextID, asOf)
	if err != nil {
		return fmt.Errorf("scheduled analysis: %w", err)
	}

	log := j.logger.ForRun(run.RunID, run.Scope.ContextID).WithFields(map[string]interface{}{
		"as_of":         run.AsOf,
		"aggregate":     run.AggregateConfidence,
		"disagreement":  string(run.Disagreement),
		"degraded":      run.Degraded(),
		"scope_version": run.Scope.Version,
		"assets":        len(run.Scope.Assets),
	})
	if run.Degraded() {
		log.Warn("Scheduled analysis completed with degraded layers")
	} else {
		log.Info("Scheduled analysis completed")
	}
	return nil
}

// Permanent reports errors that a retry cannot fix
func (j *AnalysisJob) Permanent(err error) bool {
	return errors.Is(err, contracts.ErrContextNotFound) || errors.Is(err, contracts.ErrForbiddenContext)
}
