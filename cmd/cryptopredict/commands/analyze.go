package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/persona"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "4단계 분석 1회 실행",
	Long: `Macro → Sector → Asset → Timing 체인을 한 번 실행하고
지정한 페르소나의 관점으로 결과를 출력합니다.

--as-of 를 주면 해당 시점 데이터로 재현 실행합니다 (스냅샷 재생과 함께 사용).

Example:
  go run ./cmd/cryptopredict analyze
  go run ./cmd/cryptopredict analyze --persona user --user alice --context alice-ctx
  go run ./cmd/cryptopredict analyze --persona admin --user ops --as-of 2026-03-02T09:00:00Z --json`,
	RunE: runAnalyze,
}

var (
	analyzePersona string
	analyzeUser    string
	analyzeContext string
	analyzeAsOf    string
	analyzeJSON    bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzePersona, "persona", "guest", "guest | user | admin")
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "viewer user id (user, admin)")
	analyzeCmd.Flags().StringVar(&analyzeContext, "context", "", "watchlist context id (default context if empty)")
	analyzeCmd.Flags().StringVar(&analyzeAsOf, "as-of", "", "evaluate data as of this RFC3339 time")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the projection as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	p, err := contracts.ParsePersona(analyzePersona)
	if err != nil {
		return err
	}
	viewer := contracts.Viewer{Persona: p, UserID: analyzeUser}
	if err := viewer.Validate(); err != nil {
		return err
	}

	var asOf time.Time
	if analyzeAsOf != "" {
		asOf, err = time.Parse(time.RFC3339, analyzeAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
	}

	cfg, err := loadInteractiveConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, wireOptions{publish: true})
	if err != nil {
		return err
	}
	defer a.Close()

	projection, err := analyzeOnce(ctx, a, viewer, analyzeContext, asOf)
	out := cmd.OutOrStdout()
	if err != nil {
		view := a.adapter.ProjectError(viewer.Persona, err)
		if analyzeJSON {
			_ = PrintJSON(out, view)
		} else {
			PrintError(out, fmt.Sprintf("%s (%s)", view.Message, view.Code))
			if view.Detail != "" {
				PrintKeyValue(out, "detail", view.Detail, 6)
			}
		}
		return err
	}

	if analyzeJSON {
		return PrintJSON(out, projection)
	}
	PrintProjection(out, projection)
	return nil
}

// analyzeOnce runs the chain now, or as of a fixed time when asOf is set
func analyzeOnce(ctx context.Context, a *app, viewer contracts.Viewer, contextID string, asOf time.Time) (*persona.Projection, error) {
	if asOf.IsZero() {
		return a.orch.RequestAnalysis(ctx, viewer, contextID)
	}

	run, err := a.orch.Analyze(ctx, viewer, contextID, asOf)
	if err != nil {
		return nil, err
	}
	return a.adapter.Project(ctx, run, viewer.Persona)
}
